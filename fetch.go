package paperscraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Default retry parameters.
const (
	DefaultBaseDelay   = 30 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxAttempts = 5
)

// ErrKind classifies fetch and extraction failures.
type ErrKind int

const (
	// ErrKindSkip marks a permanent rejection: the item is skipped, never retried.
	ErrKindSkip ErrKind = iota + 1
	// ErrKindExhausted marks a transient failure that outlived the retry cap.
	ErrKindExhausted
	// ErrKindMalformed marks an unreadable payload (bad archive, bad XML).
	ErrKindMalformed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindSkip:
		return "skip"
	case ErrKindExhausted:
		return "exhausted"
	case ErrKindMalformed:
		return "malformed"
	}
	return "unknown"
}

// FetchError is returned by Fetcher.Get when a URL cannot be fetched.
type FetchError struct {
	Kind       ErrKind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s after %d attempt(s): http %d", e.URL, e.Kind, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsSkip reports whether err is a permanent rejection that should skip the item.
func IsSkip(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == ErrKindSkip
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// MediaType returns the declared content type without parameters.
func (r *Response) MediaType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// Client performs the requests (default: 60s timeout client)
	Client *http.Client

	// BaseDelay is the wait before the first retry (default 30s)
	BaseDelay time.Duration

	// Multiplier grows the wait after each failed attempt (default 2.0)
	Multiplier float64

	// MaxAttempts caps the attempts for one URL (default 5)
	MaxAttempts int

	// UserAgent is sent with every request when set
	UserAgent string

	Logger *zap.Logger
}

// Fetcher performs GET requests with exponential backoff.
//
// Rate limiting (429/503), gateway errors and connection resets are retried,
// as are unclassified transport errors. Access denied and not found are
// returned immediately as ErrKindSkip. Each Get makes at most MaxAttempts
// attempts; the counter starts over for the next call.
type Fetcher struct {
	client      *http.Client
	baseDelay   time.Duration
	multiplier  float64
	maxAttempts int
	userAgent   string
	logger      *zap.Logger

	// sleep waits for d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher, filling in defaults for zero options.
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:      opts.Client,
		baseDelay:   opts.BaseDelay,
		multiplier:  opts.Multiplier,
		maxAttempts: opts.MaxAttempts,
		userAgent:   opts.UserAgent,
		logger:      opts.Logger,
		sleep:       sleepContext,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 60 * time.Second}
	}
	if f.baseDelay <= 0 {
		f.baseDelay = DefaultBaseDelay
	}
	if f.multiplier < 1 {
		f.multiplier = DefaultMultiplier
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = DefaultMaxAttempts
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// Backoff returns the wait after the given number of failed attempts.
func (f *Fetcher) Backoff(failed int) time.Duration {
	return time.Duration(float64(f.baseDelay) * math.Pow(f.multiplier, float64(failed)))
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeRetry
	outcomeSkip
)

// Get fetches url, retrying transient failures.
func (f *Fetcher) Get(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	var lastStatus int
	for failed := 0; failed < f.maxAttempts; failed++ {
		resp, retryAfter, err := f.do(ctx, url)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var status int
		if resp != nil {
			status = resp.StatusCode
		}
		switch classify(status, err) {
		case outcomeOK:
			return resp, nil
		case outcomeSkip:
			f.logger.Warn("skipping item",
				zap.String("url", url),
				zap.Int("status", status),
			)
			return nil, &FetchError{Kind: ErrKindSkip, URL: url, StatusCode: status, Attempts: failed + 1, Err: err}
		}

		lastErr, lastStatus = err, status
		if failed+1 == f.maxAttempts {
			break
		}
		wait := f.Backoff(failed)
		if retryAfter > wait {
			wait = retryAfter
		}
		msg := "retrying request"
		if err != nil && !isReset(err) {
			msg = "retrying request after unclassified error"
		}
		f.logger.Info(msg,
			zap.String("url", url),
			zap.Int("status", status),
			zap.Int("attempt", failed+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("http %d", lastStatus)
	}
	return nil, &FetchError{Kind: ErrKindExhausted, URL: url, StatusCode: lastStatus, Attempts: f.maxAttempts, Err: lastErr}
}

func (f *Fetcher) do(ctx context.Context, url string) (*Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, retryAfter, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, 0, nil
}

func classify(status int, err error) outcome {
	if err != nil {
		// Resets and anything unrecognised are retried; the attempt cap bounds the loop.
		return outcomeRetry
	}
	switch status {
	case http.StatusOK:
		return outcomeOK
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return outcomeSkip
	}
	return outcomeRetry
}

// isReset reports whether err is a low-level connection reset.
func isReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
