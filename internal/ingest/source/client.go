package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/minsik-app/ingestion/internal/ingest/ingesterr"
	"github.com/minsik-app/ingestion/internal/platform/constants"
)

// ClientOptions tunes the shared source HTTP client.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// RateLimit caps outgoing requests per second towards one source.
	RateLimit float64
}

// Client is the retrying, rate-limited HTTP client shared by all adapters.
//
// # Retry Policy
//
// HTTP 429 and 5xx responses and timeouts are retried with linear backoff
// (delay * attempt). Other non-200 statuses fail immediately. Exhausted
// retries surface as [ingesterr.ErrSourceUnavailable].
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// NewClient builds a [Client] from options, applying sane floors.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}

	return &Client{
		http:       &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// GetJSON fetches rawURL (with optional query params) and decodes the JSON
// body into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, target any) error {
	requestURL := rawURL
	if len(params) > 0 {
		requestURL = rawURL + "?" + params.Encode()
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("source: build request: %w", err)
		}
		request.Header.Set("User-Agent", constants.UserAgent)
		request.Header.Set("Accept", "application/json")

		response, err := c.http.Do(request)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeouts and connection resets get the linear backoff.
			if !c.sleep(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}

		switch {
		case response.StatusCode == http.StatusOK:
			err := json.NewDecoder(response.Body).Decode(target)
			closeBody(response)
			if err != nil {
				return ingesterr.MalformedRecord("source.decode", err)
			}
			return nil

		case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
			closeBody(response)
			if !c.sleep(ctx, attempt) {
				return ctx.Err()
			}

		default:
			closeBody(response)
			return ingesterr.SourceUnavailable("source.get",
				fmt.Errorf("unexpected status %d from %s", response.StatusCode, rawURL))
		}
	}

	return ingesterr.SourceUnavailable("source.get",
		fmt.Errorf("retries exhausted for %s", rawURL))
}

// sleep waits delay*attempt, returning false when ctx ends first.
func (c *Client) sleep(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(c.retryDelay * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func closeBody(response *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<20))
	_ = response.Body.Close()
}
