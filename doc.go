// Package paperscraper builds sentence corpora from arXiv paper sources.
//
// This package implements:
//   - OAI-PMH ListRecords harvesting with resumption tokens, plus the arXiv
//     search API as an alternate record source
//   - HTTP fetching with exponential backoff and Retry-After support
//   - e-print bundle download and extraction (gzip + tar)
//   - LaTeX prose extraction, cleaning and sentence splitting
//   - classification of documents into quota-bounded output corpora
//
// A date range is processed in chunks. Each chunk's sentences are appended
// to the class output files together with a provenance log entry, so an
// interrupted run keeps every completed chunk.
//
// Basic usage:
//
//	r, _ := paperscraper.ParseDateRange("2024-01-01", "2024-01-31")
//	fetcher := paperscraper.NewFetcher(paperscraper.FetcherOptions{})
//	writer, err := paperscraper.OpenWriter([]string{"corpus.txt"}, "provenance.log", false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	s, err := paperscraper.New(paperscraper.Options{
//		Source:    paperscraper.NewHarvester(paperscraper.NewOAIClient(fetcher, ""), paperscraper.HarvestOptions{Set: "cs"}),
//		Extractor: paperscraper.NewExtractor(fetcher, paperscraper.ExtractorOptions{Extensions: []string{".tex"}}),
//		Classes:   []paperscraper.Class{{Name: "all", Predicate: paperscraper.MainFileOnly, Quota: 10000}},
//		Writer:    writer,
//		Range:     r,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	stats, err := s.Run(ctx)
package paperscraper
