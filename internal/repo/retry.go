package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrBusy is returned by WithRetry when the store stayed locked for every
// attempt. Callers should treat it as transient.
var ErrBusy = errors.New("storage busy")

// RetryPolicy bounds how often a locked write is retried.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Backoff is the wait before the first retry; later waits double.
	Backoff time.Duration
}

// IsLocked reports whether err is SQLite lock contention.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "sqlite_busy")
}

// WithRetry runs fn, retrying only on lock contention. Any other error is
// returned immediately and unchanged. Exhausted retries yield an error
// wrapping ErrBusy.
func WithRetry(ctx context.Context, p RetryPolicy, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Backoff
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = 100 * time.Millisecond
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	try := 0
	err := backoff.Retry(func() error {
		try++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsLocked(err) {
			return backoff.Permanent(err)
		}
		zerolog.Ctx(ctx).Warn().Err(err).Int("attempt", try).Msg("storage locked, retrying")
		return err
	}, b)
	if err != nil && IsLocked(err) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
