package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrRetriesExhausted marks a call that failed on a retryable condition
// after the full retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError is a non-retryable HTTP failure surfaced immediately.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

var retryableStatus = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// Fetcher is the sole point of contact with the external API. Every GET
// goes through the shared circuit breaker and rate limiter, carries its
// own timeout, and retries transient failures with exponential backoff.
type Fetcher struct {
	client      *http.Client
	limiter     *RateLimiter
	breaker     *CircuitBreaker
	userAgent   string
	maxRetries  int
	baseBackoff time.Duration
	timeout     time.Duration
	logger      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type FetcherOptions struct {
	UserAgent   string
	MaxRetries  int
	BaseBackoff time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
}

func NewFetcher(limiter *RateLimiter, breaker *CircuitBreaker, logger zerolog.Logger, opts FetcherOptions) *Fetcher {
	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = 5
	}
	baseBackoff := opts.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		client:      client,
		limiter:     limiter,
		breaker:     breaker,
		userAgent:   opts.UserAgent,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
		timeout:     timeout,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// GetJSON issues one GET against baseURL with the given query parameters
// and decodes the JSON response into out. Retryable failures (429, 5xx,
// transport errors) are retried up to the budget; other HTTP errors
// return a *StatusError immediately. An open breaker returns
// ErrUnavailable without touching the network. Every attempt, retries
// included, debits one rate limiter token.
func (f *Fetcher) GetJSON(ctx context.Context, baseURL string, params url.Values, out any) error {
	if !f.breaker.Allow() {
		return ErrUnavailable
	}

	target := baseURL
	if len(params) > 0 {
		target = baseURL + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if err := f.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		retryAfter, err := f.attempt(ctx, target, out)
		if err == nil {
			f.breaker.RecordSuccess()
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if _, retryable := retryableStatus[statusErr.Code]; !retryable {
				f.breaker.RecordFailure()
				return err
			}
		}
		lastErr = err

		if attempt == f.maxRetries {
			break
		}
		delay := f.backoffDelay(attempt, retryAfter)
		f.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Str("url", baseURL).
			Msg("retrying external request")
		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
	}

	f.breaker.RecordFailure()
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, f.maxRetries, lastErr)
}

// attempt performs a single request. The returned string is the raw
// Retry-After header when the server provided one.
func (f *Fetcher) attempt(ctx context.Context, target string, out any) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.Header.Get("Retry-After"), &StatusError{Code: resp.StatusCode, URL: target}
	}

	if out == nil {
		return "", nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("decode response JSON: %w", err)
	}
	return "", nil
}

// backoffDelay returns base*2^(attempt-1), unless the server supplied a
// parseable Retry-After value in seconds, which takes precedence.
func (f *Fetcher) backoffDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil && seconds >= 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return f.baseBackoff << (attempt - 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
