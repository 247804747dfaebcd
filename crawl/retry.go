package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sitediff"
)

// FetchFunc is the signature for a fetch function.
type FetchFunc func(ctx context.Context, url string) (string, error)

// BackoffDelays returns exponential retry delays: base, 2*base, 4*base, ...
// with one entry per retry.
func BackoffDelays(base time.Duration, retries int) []time.Duration {
	if retries <= 0 {
		return nil
	}
	delays := make([]time.Duration, retries)
	d := base
	for i := range delays {
		delays[i] = d
		d *= 2
	}
	return delays
}

// FetchWithRetry attempts to fetch a URL, retrying retryable failures after
// each of the given delays (len(delays)+1 attempts in total). Terminal
// failures such as 4xx responses are returned immediately. The logger, if
// provided, receives one record per retry.
func FetchWithRetry(ctx context.Context, url string, fetch FetchFunc, logger *slog.Logger, delays []time.Duration) (string, error) {
	maxAttempts := len(delays) + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		content, err := fetch(ctx, url)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !sitediff.IsRetryable(err) || attempt >= maxAttempts-1 {
			break
		}

		if logger != nil {
			logger.Debug("retry", "url", url, "attempt", attempt+2, "delay", delays[attempt], "err", err)
		}

		t := time.NewTimer(delays[attempt])
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	return "", lastErr
}
