package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/logging"
)

var log = logging.For("retry")

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// NoRetry performs exactly one attempt. Used for calls made inside a user
// action, where the caller falls back instead of waiting.
var NoRetry = RetryConfig{MaxAttempts: 1}

// Do executes an HTTP request with exponential backoff retry. Transport
// errors, 5xx and 429 responses are retried; any other response is returned
// to the caller as is. buildReq is called on each attempt to produce a
// fresh request, since bodies are consumed.
func Do(ctx context.Context, client *http.Client, cfg RetryConfig, buildReq func() (*http.Request, error)) (*http.Response, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetry.MaxAttempts
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil && !retryable(resp.StatusCode) {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		log.WithField("host", req.URL.Host).
			Warnf("attempt %d/%d failed: %v, retrying in %s", attempt, cfg.MaxAttempts, lastErr, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	if cfg.MaxAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all %d attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}
