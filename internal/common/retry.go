package common

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how a store or mail call is attempted.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// BaseDelay is the first backoff interval; it doubles on every retry.
	BaseDelay time.Duration
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// transientError lets callers flag failures IsTransient cannot recognize
// on its own, such as a 4xx SMTP reply.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient flags err as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrorUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// policy's attempts are used up. Each attempt gets its own timeout. The
// parent's cancellation is deliberately not propagated: a client abort must
// not interrupt a store call that is already in flight.
//
// Exhausted transient failures are returned wrapped in ErrorUnavailable.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 10 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
	detached := context.WithoutCancel(ctx)

	v, err := retry.DoValue(detached, backoff, func(ctx context.Context) (T, error) {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		v, err := fn(attemptCtx)
		if err != nil && IsTransient(err) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})

	if err != nil && IsTransient(err) && !errors.Is(err, ErrorUnavailable) {
		return v, fmt.Errorf("%w: %w", ErrorUnavailable, err)
	}
	return v, err
}
