package paperscraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Source discovers the records published in a date range.
type Source interface {
	Records(ctx context.Context, r DateRange) ([]Record, error)
}

// HarvestOptions configures metadata harvesting.
type HarvestOptions struct {
	// Set filters to a specific arXiv set (e.g., "cs" or "physics:cond-mat")
	Set string

	// Filter keeps only matching records (nil keeps all)
	Filter RecordFilter

	// PageDelay is the wait between resumption requests (arXiv asks for 3s)
	PageDelay time.Duration

	// Progress callback for reporting harvest progress
	Progress func(fetched, total int)

	Logger *zap.Logger
}

// Harvester pages through OAI-PMH ListRecords responses.
type Harvester struct {
	client *OAIClient
	opts   HarvestOptions
	logger *zap.Logger
}

var _ Source = (*Harvester)(nil)

// NewHarvester creates a Harvester on top of client.
func NewHarvester(client *OAIClient, opts HarvestOptions) *Harvester {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{client: client, opts: opts, logger: logger}
}

// Records implements Source.
func (h *Harvester) Records(ctx context.Context, r DateRange) ([]Record, error) {
	return h.Harvest(ctx, r)
}

// Harvest fetches every page for r and returns the records passing the
// filter, in listing order. Transient failures are retried by the fetcher
// with the same resumption token. If a page is malformed, the records
// accepted from earlier pages are returned together with an error wrapping
// ErrMalformedListing.
func (h *Harvester) Harvest(ctx context.Context, r DateRange) ([]Record, error) {
	start := time.Now()
	var (
		records []Record
		token   string
		fetched int
		pages   int
	)

	for {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}

		page, err := h.client.ListRecords(ctx, h.opts.Set, r, token)
		if err != nil {
			if errors.Is(err, ErrMalformedListing) {
				h.logger.Error("malformed listing, keeping records harvested so far",
					zap.Stringer("range", r),
					zap.Int("pages", pages),
					zap.Int("kept", len(records)),
					zap.Error(err),
				)
			}
			return records, fmt.Errorf("list records %s: %w", r, err)
		}
		pages++

		for i := range page.Records {
			if h.opts.Filter.Match(&page.Records[i]) {
				records = append(records, page.Records[i])
			}
		}
		fetched += len(page.Records)

		if h.opts.Progress != nil {
			h.opts.Progress(fetched, page.CompleteListSize)
		}

		if page.ResumptionToken == "" {
			break
		}
		token = page.ResumptionToken

		if h.opts.PageDelay > 0 {
			if err := sleepContext(ctx, h.opts.PageDelay); err != nil {
				return records, err
			}
		}
	}

	h.logger.Info("harvest complete",
		zap.Stringer("range", r),
		zap.Int("pages", pages),
		zap.Int("fetched", fetched),
		zap.Int("accepted", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return records, nil
}
