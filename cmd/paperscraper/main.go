package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/tmc/paperscraper"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "text":
		cmdText(ctx, args)
	case "meta":
		cmdMeta(ctx, args)
	case "chunks":
		cmdChunks(args)
	case "help", "-h", "-help", "--help":
		usage()
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Println(`paperscraper - build sentence corpora from arXiv sources

Usage: paperscraper <command> [options]

Commands:
  text       Harvest, download, extract and classify sentences into corpora
  meta       Harvest metadata only and print records as JSON lines
  chunks     Print the date chunks a run would request

Environment:
  PAPERSCRAPER_*  Override config values (FROM, UNTIL, SET, QUERY, LOG_LEVEL, ...)
  .env            Loaded from the working directory when present

Examples:
  paperscraper text -config corpus.yaml
  paperscraper text -config corpus.yaml -from 2024-01-01 -until 2024-01-31 -j 4
  paperscraper meta -set cs -from 2024-01-01 -until 2024-01-03
  paperscraper chunks -from 2024-01-01 -until 2024-03-01 -interval 10 -reverse`)
}

// commonFlags are shared by every command that loads a config.
type commonFlags struct {
	config   *string
	from     *string
	until    *string
	set      *string
	query    *string
	interval *int
	reverse  *bool
	logLevel *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config:   fs.String("config", "", "YAML config file"),
		from:     fs.String("from", "", "Start date (YYYY-MM-DD)"),
		until:    fs.String("until", "", "End date (YYYY-MM-DD)"),
		set:      fs.String("set", "", "arXiv OAI set (e.g., cs, physics:cond-mat)"),
		query:    fs.String("query", "", "Use the search API with this query instead of OAI-PMH"),
		interval: fs.Int("interval", 0, "Days per date chunk"),
		reverse:  fs.Bool("reverse", false, "Walk chunks from the end date backwards"),
		logLevel: fs.String("log-level", "", "Log level (debug, info, warn, error)"),
	}
}

// load reads the config, then lets set flags override it.
func (f *commonFlags) load() *paperscraper.Config {
	cfg, err := paperscraper.Load(*f.config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *f.from != "" {
		cfg.From = *f.from
	}
	if *f.until != "" {
		cfg.Until = *f.until
	}
	if *f.set != "" {
		cfg.Source.Set = *f.set
	}
	if *f.query != "" {
		cfg.Source.Kind = "search"
		cfg.Source.Query = *f.query
	}
	if *f.interval > 0 {
		cfg.IntervalDays = *f.interval
	}
	if *f.reverse {
		cfg.Reverse = true
	}
	if *f.logLevel != "" {
		cfg.Logging.Level = *f.logLevel
	}
	return cfg
}

func cmdText(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("text", flag.ExitOnError)
	common := addCommonFlags(fs)
	concurrency := fs.Int("j", 0, "Items fetched and extracted in parallel")
	workDir := fs.String("work", "", "Extraction work directory (default: temp dir)")
	appendMode := fs.Bool("append", false, "Append to existing corpora instead of truncating")
	fs.Parse(args)

	cfg := common.load()
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *appendMode {
		cfg.Append = true
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	opts, err := cfg.Options(logger)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	scraper, err := paperscraper.New(opts)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Info("starting run",
		zap.String("from", cfg.From),
		zap.String("until", cfg.Until),
		zap.String("source", cfg.Source.Kind),
		zap.Int("classes", len(cfg.Classes)),
		zap.Int("concurrency", cfg.Concurrency),
	)
	stats, err := scraper.Run(ctx)
	if stats != nil {
		fmt.Printf("Chunks:    %d\n", stats.Chunks)
		fmt.Printf("Scraped:   %d\n", stats.Scraped)
		fmt.Printf("Extracted: %d\n", stats.Extracted)
		fmt.Printf("Sentences: %d\n", stats.Sentences)
		for i, n := range stats.PerClass {
			fmt.Printf("  class %d (%s): %d -> %s\n", i, opts.Classes[i].Name, n, opts.Writer.Outputs()[i])
		}
		if stats.Stopped {
			fmt.Println("All quotas reached.")
		}
	}
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func cmdMeta(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("meta", flag.ExitOnError)
	common := addCommonFlags(fs)
	out := fs.String("o", "", "Output file (default: stdout)")
	fs.Parse(args)

	cfg := common.load()
	r, err := cfg.Range()
	if err != nil {
		log.Fatalf("date range: %v", err)
	}
	if cfg.Source.Kind == "oai" && cfg.Source.Set == "" {
		log.Fatal("usage: paperscraper meta -set <set> [-from date] [-until date]")
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	source, err := cfg.NewSource(cfg.NewFetcher(logger), logger)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	chunks, err := paperscraper.DateChunks(r, cfg.IntervalDays, cfg.Reverse)
	if err != nil {
		log.Fatalf("date range: %v", err)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	enc := json.NewEncoder(bw)

	total := 0
	for chunk := range chunks {
		records, err := source.Records(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("listing failed", zap.Stringer("range", chunk), zap.Error(err))
		}
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				log.Fatalf("write record: %v", err)
			}
		}
		total += len(records)
		logger.Info("chunk harvested", zap.Stringer("range", chunk), zap.Int("records", len(records)))
	}
	logger.Info("harvest done", zap.Int("records", total))
}

func cmdChunks(args []string) {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	cfg := common.load()
	r, err := cfg.Range()
	if err != nil {
		log.Fatalf("date range: %v", err)
	}
	chunks, err := paperscraper.DateChunks(r, cfg.IntervalDays, cfg.Reverse)
	if err != nil {
		log.Fatalf("date range: %v", err)
	}
	for chunk := range chunks {
		fmt.Printf("%s\t%s\n", chunk.From.Format(paperscraper.DateLayout), chunk.Until.Format(paperscraper.DateLayout))
	}
}
