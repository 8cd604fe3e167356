package paperscraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClassOutputMismatch is returned when the number of output files does
// not match the number of classes.
var ErrClassOutputMismatch = errors.New("class and output counts differ")

// Options configures a Scraper.
type Options struct {
	// Source discovers the records of each date chunk
	Source Source

	// Extractor downloads and unpacks e-print bundles
	Extractor *Extractor

	// Classes in index order; Writer must have one output per class
	Classes []Class

	Writer *CorpusWriter

	// Range is the full date range to scrape
	Range DateRange

	// IntervalDays bounds each date chunk (default 10)
	IntervalDays int

	// Reverse walks the chunks from Range.Until backwards
	Reverse bool

	// WorkDir holds the per-worker extraction directories (default: a temp dir)
	WorkDir string

	// Concurrency is the number of items fetched and extracted in parallel
	// (default 1). Classification and writing keep listing order.
	Concurrency int

	Logger *zap.Logger
}

// RunStats summarises a run.
type RunStats struct {
	Chunks    int
	Scraped   int
	Extracted int
	Sentences int

	// PerClass is the final sentence count of each class
	PerClass []int

	// Stopped is set when every class reached its quota before the range ended
	Stopped bool

	Elapsed time.Duration
}

// Scraper runs the harvest, extract, classify and write pipeline.
type Scraper struct {
	opts       Options
	classifier *Classifier
	logger     *zap.Logger
}

// New validates opts and creates a Scraper. No network access happens here.
func New(opts Options) (*Scraper, error) {
	if opts.Source == nil {
		return nil, errors.New("scraper: no source")
	}
	if opts.Extractor == nil {
		return nil, errors.New("scraper: no extractor")
	}
	if opts.Writer == nil {
		return nil, errors.New("scraper: no writer")
	}
	if len(opts.Classes) == 0 {
		return nil, errors.New("scraper: no classes")
	}
	if n := len(opts.Writer.Outputs()); n != len(opts.Classes) {
		return nil, fmt.Errorf("scraper: %w: %d classes, %d outputs", ErrClassOutputMismatch, len(opts.Classes), n)
	}
	if err := opts.Range.Validate(); err != nil {
		return nil, fmt.Errorf("scraper: %w", err)
	}
	if opts.IntervalDays == 0 {
		opts.IntervalDays = 10
	}
	if opts.IntervalDays < 0 {
		return nil, fmt.Errorf("scraper: invalid interval %d", opts.IntervalDays)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	classifier, err := NewClassifier(opts.Classes)
	if err != nil {
		return nil, fmt.Errorf("scraper: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{opts: opts, classifier: classifier, logger: logger}, nil
}

// Run scrapes the configured range chunk by chunk. Each chunk's output is
// written once the chunk is done. The run ends early, between items or
// between chunks, once every class has reached its quota.
func (s *Scraper) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	chunks, err := DateChunks(s.opts.Range, s.opts.IntervalDays, s.opts.Reverse)
	if err != nil {
		return nil, err
	}

	workDir := s.opts.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "paperscraper-work-*")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(workDir)
	}

	states := s.classifier.NewStates()
	stats := &RunStats{}
	defer func() {
		stats.PerClass = make([]int, len(states))
		for i, st := range states {
			stats.PerClass[i] = st.Count
		}
		stats.Elapsed = time.Since(start)
	}()

	for chunk := range chunks {
		if AllInactive(states) {
			break
		}
		s.logger.Info("fetching chunk", zap.Stringer("range", chunk))

		records, err := s.opts.Source.Records(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if !errors.Is(err, ErrMalformedListing) {
				s.logger.Error("listing failed, skipping chunk", zap.Stringer("range", chunk), zap.Error(err))
				continue
			}
			s.logger.Warn("malformed listing, keeping partial records",
				zap.Stringer("range", chunk),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
		}

		batch, err := s.processChunk(ctx, records, states, workDir, stats)
		if err != nil {
			return stats, err
		}
		if err := s.opts.Writer.WriteBatch(batch); err != nil {
			return stats, err
		}

		stats.Chunks++
		stats.Scraped += len(batch.Scraped)
		for _, sents := range batch.Sentences {
			stats.Sentences += len(sents)
		}
		s.logger.Info("chunk written",
			zap.Stringer("range", chunk),
			zap.Int("scraped", len(batch.Scraped)),
			zap.Int("sentences", stats.Sentences),
		)
	}

	stats.Stopped = AllInactive(states)
	s.logger.Info("run complete",
		zap.Int("chunks", stats.Chunks),
		zap.Int("scraped", stats.Scraped),
		zap.Int("sentences", stats.Sentences),
		zap.Bool("stopped", stats.Stopped),
	)
	return stats, nil
}

// item is the prepared text of one record.
type item struct {
	docs []*Document
	err  error
}

func (s *Scraper) processChunk(ctx context.Context, records []Record, states []ClassState, workDir string, stats *RunStats) (*Batch, error) {
	batch := NewBatch(len(s.opts.Classes))
	next, stop := s.prepareAll(ctx, records, workDir)
	defer stop()

	for i, rec := range records {
		if AllInactive(states) {
			s.logger.Info("all classes full, stopping", zap.String("id", rec.ID))
			break
		}
		batch.Scraped = append(batch.Scraped, rec.ID)

		it := next(i)
		if it.err != nil {
			return batch, it.err
		}
		if len(it.docs) > 0 {
			stats.Extracted++
		}
		for _, doc := range it.docs {
			batch.Add(rec.ID, s.classifier.Classify(states, doc, rec))
		}
	}
	return batch, nil
}

// prepareAll returns next, which yields the prepared item for index i, and
// stop, which releases any background work. With Concurrency 1 items are
// prepared on demand; otherwise a bounded pool prepares them ahead and next
// waits for the slot of i, so consumers see listing order.
func (s *Scraper) prepareAll(ctx context.Context, records []Record, workDir string) (next func(int) item, stop func()) {
	n := s.opts.Concurrency
	if n <= 1 {
		dir := filepath.Join(workDir, "0")
		return func(i int) item { return s.prepare(ctx, records[i], dir) }, func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	slots := make([]chan item, len(records))
	for i := range slots {
		slots[i] = make(chan item, 1)
	}
	dirs := make(chan string, n)
	for w := 0; w < n; w++ {
		dirs <- filepath.Join(workDir, strconv.Itoa(w))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(n)
		for i, rec := range records {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					slots[i] <- item{err: err}
					return nil
				}
				dir := <-dirs
				defer func() { dirs <- dir }()
				slots[i] <- s.prepare(ctx, rec, dir)
				return nil
			})
		}
		g.Wait()
	}()

	next = func(i int) item { return <-slots[i] }
	stop = func() {
		cancel()
		<-done
	}
	return next, stop
}

// prepare fetches, unpacks and extracts one record. Per-item failures are
// logged and yield no documents; only cancellation is returned as an error.
func (s *Scraper) prepare(ctx context.Context, rec Record, workDir string) item {
	logger := s.logger.With(zap.String("id", rec.ID))

	dir, err := s.opts.Extractor.FetchAndExtract(ctx, rec.ID, workDir)
	if err != nil {
		if ctx.Err() != nil {
			return item{err: ctx.Err()}
		}
		var fe *FetchError
		var ee *ExtractError
		switch {
		case IsSkip(err):
			logger.Warn("source not accessible, skipping", zap.Error(err))
		case errors.As(err, &ee):
			logger.Warn("malformed archive, skipping", zap.Error(err))
		case errors.As(err, &fe):
			logger.Error("source fetch failed, skipping", zap.Error(err))
		default:
			logger.Error("source extraction failed, skipping", zap.Error(err))
		}
		return item{}
	}
	if dir == "" {
		logger.Debug("no extractable content")
		return item{}
	}

	files, err := s.opts.Extractor.ListExtracted(dir)
	if err != nil {
		logger.Error("list extracted files", zap.Error(err))
		return item{}
	}

	var docs []*Document
	for _, path := range files {
		doc, err := ExtractFile(path)
		if err != nil {
			logger.Warn("text extraction failed", zap.String("file", filepath.Base(path)), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	logger.Debug("extracted", zap.Int("files", len(files)), zap.Int("documents", len(docs)))
	return item{docs: docs}
}
