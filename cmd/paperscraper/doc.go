/*
Paperscraper builds sentence corpora from arXiv paper sources.

It harvests arXiv metadata for a date range, downloads each paper's e-print
source bundle, extracts the LaTeX prose as sentences and appends them to one
or more corpus files according to configurable classes.

# Usage

	paperscraper <command> [options]

# Commands

	text       Harvest, download, extract and classify sentences into corpora
	meta       Harvest metadata only and print records as JSON lines
	chunks     Print the date chunks a run would request

# Configuration

Runs are described by a YAML file:

	from: "2024-01-01"
	until: "2024-01-31"
	interval_days: 10
	source:
	  kind: oai
	  set: cs
	  filter:
	    categories: [cs.CL]
	fetch:
	  base_delay: 30s
	  max_attempts: 5
	extract:
	  extensions: [.tex]
	classes:
	  - name: german
	    output: corpus/de.txt
	    quota: 100000
	    predicate: {type: keyword, fields: [institutes], keywords: [universität, max planck]}
	  - name: rest
	    output: corpus/rest.txt
	    predicate: {type: main}
	log_file: corpus/provenance.log

A .env file in the working directory is loaded first, then PAPERSCRAPER_*
environment variables (PAPERSCRAPER_FROM, PAPERSCRAPER_SET,
PAPERSCRAPER_LOG_LEVEL, ...) override the file, and flags override both.

# Output

Each class appends one sentence per line to its output file. After every
date chunk the provenance log gets a "Scraped" header followed by the
fetched IDs, then an "Extracted - class N" header per class followed by the
IDs that contributed sentences to it.

A run stops early once every class has filled its quota.
*/
package main
