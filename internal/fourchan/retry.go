package fourchan

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
)

// retryPolicy decides which failed requests are attempted again and how long
// to wait in between.
type retryPolicy struct {
	maxRetries int
	min        time.Duration
	max        time.Duration
}

func (p retryPolicy) backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    p.min,
		Max:    p.max,
		Factor: 2,
		Jitter: true,
	}
}

// retryableStatus reports whether a response code is worth another attempt.
// 304 and 404 are answers, not failures.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// retryableError reports whether a transport error is worth another attempt.
func retryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
