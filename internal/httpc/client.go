// Package httpc provides a shared HTTP client with sensible defaults.
// Use this instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultMaxRetryDelay   = 5 * time.Second
)

// ErrNoAttempt is returned by DoWithRetry when no request was sent.
var ErrNoAttempt = errors.New("httpc: no request attempted")

// Client is a shared HTTP client with production-ready defaults.
var Client = NewClient(DefaultTimeout)

// NewClient creates a new HTTP client with the specified timeout.
// For most cases, use the shared Client variable instead.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Retry controls DoWithRetry.
type Retry struct {
	// MaxRetries is the number of extra attempts after the first one.
	// Negative values are treated as zero.
	MaxRetries int

	// Delay is the first backoff step; each retry doubles it up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration

	Logger *slog.Logger
}

// Retryable reports whether a response status warrants another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// DoWithRetry sends the request built by newReq, retrying transport errors
// and retryable statuses with exponential backoff. newReq is called once per
// attempt so request bodies are always fresh.
//
// On the final attempt a retryable response is returned to the caller
// unread, so the caller can decode the vendor's error body.
func DoWithRetry(ctx context.Context, client *http.Client, r Retry, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if client == nil {
		client = Client
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	maxDelay := r.MaxDelay
	if maxDelay == 0 {
		maxDelay = DefaultMaxRetryDelay
	}
	b := &backoff.Backoff{
		Min:    r.Delay,
		Max:    maxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if r.Logger != nil {
				r.Logger.Warn("request failed, retrying", "attempt", attempt+1, "error", err)
			}
			continue
		}

		if Retryable(resp.StatusCode) && attempt < r.MaxRetries {
			resp.Body.Close()
			if r.Logger != nil {
				r.Logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
			}
			continue
		}

		return resp, nil
	}

	if lastErr == nil {
		lastErr = ErrNoAttempt
	}
	return nil, lastErr
}

// JSONRequest returns a request builder for DoWithRetry that sends body as JSON.
func JSONRequest(method, url string, body []byte, header http.Header) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}
