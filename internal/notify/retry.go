package notify

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Factor   float64
}

// DefaultRetryPolicy caps transient retries at three attempts starting
// from a one second backoff.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: time.Second, Factor: 2}

// Do runs fn until it succeeds, fails permanently, or attempts are
// exhausted. Only errors marked transient are retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Base
	if backoff <= 0 {
		backoff = time.Second
	}
	factor := p.Factor
	if factor < 1 {
		factor = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * factor)
	}
	return err
}
