package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultUserAgent mimics a tablet browser; several recipe blogs block
// obvious bot identities outright.
const DefaultUserAgent = "Mozilla/5.0 (iPad; CPU OS 12_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxRetries   = 2
	defaultRetryBase    = 500 * time.Millisecond
)

// Fetcher issues single GET requests with a browser-like identity header.
// Transient failures (transport errors, 429, 5xx) are retried a bounded number
// of times with exponential backoff. A shared rate limiter enforces a courtesy
// delay between outbound requests so a crawl never hammers the source site.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration
	logger     zerolog.Logger
}

// FetcherOptions tunes a Fetcher; zero values fall back to defaults.
type FetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the minimum spacing between requests. Zero disables the
	// courtesy delay (tests rely on this).
	Delay      time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

// NewFetcher constructs a Fetcher.
func NewFetcher(opts FetcherOptions, logger zerolog.Logger) *Fetcher {
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		limiter:    limiter,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		logger:     logger,
	}
}

// UserAgent returns the identity header the fetcher sends.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Fetch GETs url and returns the response body. Non-2xx statuses are errors;
// a failed URL is reported to the caller, which decides whether to skip it or
// abort the run.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.retryBase << (attempt - 1)
			f.logger.Debug().
				Str("url", url).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("fetch: retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return data, false, nil
}
