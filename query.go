package paperscraper

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIBaseURL is the arXiv search API endpoint.
const DefaultAPIBaseURL = "https://export.arxiv.org/api/query"

// SearchOptions configures a SearchSource.
type SearchOptions struct {
	// BaseURL of the Atom API (default DefaultAPIBaseURL)
	BaseURL string

	// Query is an arXiv search_query expression, e.g. "cat:cs.CL"
	Query string

	// PageSize is max_results per request (default 100)
	PageSize int

	// Filter keeps only matching records (nil keeps all)
	Filter RecordFilter

	// PageDelay is the wait between page requests
	PageDelay time.Duration

	Logger *zap.Logger
}

// SearchSource discovers records through the arXiv search API instead of
// OAI-PMH. It pages with start/max_results until a short page comes back.
type SearchSource struct {
	fetcher *Fetcher
	opts    SearchOptions
	logger  *zap.Logger
}

var _ Source = (*SearchSource)(nil)

// NewSearchSource creates a SearchSource.
func NewSearchSource(fetcher *Fetcher, opts SearchOptions) *SearchSource {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIBaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchSource{fetcher: fetcher, opts: opts, logger: logger}
}

// Records implements Source.
func (s *SearchSource) Records(ctx context.Context, r DateRange) ([]Record, error) {
	var records []Record
	for start := 0; ; start += s.opts.PageSize {
		resp, err := s.fetcher.Get(ctx, s.queryURL(r, start))
		if err != nil {
			return records, fmt.Errorf("search %s: %w", r, err)
		}

		var feed atomFeed
		if err := xml.Unmarshal(resp.Body, &feed); err != nil {
			return records, fmt.Errorf("search %s: %w: parse xml: %v", r, ErrMalformedListing, err)
		}

		for _, entry := range feed.Entries {
			rec := recordFromAtom(entry)
			if rec.ID == "" {
				continue
			}
			if s.opts.Filter.Match(&rec) {
				records = append(records, rec)
			}
		}

		if len(feed.Entries) < s.opts.PageSize {
			break
		}
		if s.opts.PageDelay > 0 {
			if err := sleepContext(ctx, s.opts.PageDelay); err != nil {
				return records, err
			}
		}
	}

	s.logger.Info("search complete",
		zap.Stringer("range", r),
		zap.String("query", s.opts.Query),
		zap.Int("accepted", len(records)),
	)
	return records, nil
}

func (s *SearchSource) queryURL(r DateRange, start int) string {
	q := fmt.Sprintf("submittedDate:[%s0000 TO %s2359]",
		r.From.Format("20060102"), r.Until.Format("20060102"))
	if s.opts.Query != "" {
		q = fmt.Sprintf("(%s) AND %s", s.opts.Query, q)
	}

	params := url.Values{}
	params.Set("search_query", q)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(s.opts.PageSize))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "ascending")
	return s.opts.BaseURL + "?" + params.Encode()
}

// Atom feed structures for arXiv API

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	DOI        string         `xml:"doi"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// recordFromAtom converts an atom entry to a Record.
func recordFromAtom(entry atomEntry) Record {
	// http://arxiv.org/abs/2301.00001v1 -> 2301.00001
	id := ""
	if idx := strings.LastIndex(entry.ID, "/abs/"); idx >= 0 {
		id = normalizeArxivID(entry.ID[idx+5:])
	}

	var authors []string
	for _, a := range entry.Authors {
		if name := normalizeSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	var categories []string
	for _, c := range entry.Categories {
		categories = append(categories, c.Term)
	}

	rec := Record{
		ID:         id,
		Title:      normalizeSpace(entry.Title),
		Abstract:   normalizeSpace(entry.Summary),
		Categories: strings.Join(categories, " "),
		DOI:        normalizeSpace(entry.DOI),
		Created:    atomDate(entry.Published),
		Authors:    authors,
	}
	if updated := atomDate(entry.Updated); updated != rec.Created {
		rec.Updated = updated
	}
	if id != "" {
		rec.URL = AbstractURL(id)
	}
	return rec
}

func atomDate(s string) string {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return t.Format(DateLayout)
}

// normalizeArxivID strips version suffixes (e.g., "2301.00001v2" -> "2301.00001").
func normalizeArxivID(id string) string {
	idx := strings.LastIndex(id, "v")
	if idx <= 0 {
		return id
	}
	suffix := id[idx+1:]
	if suffix == "" {
		return id
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return id
		}
	}
	return id[:idx]
}
