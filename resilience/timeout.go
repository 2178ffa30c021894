package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Pre-configured deadlines per operation category.
const (
	// DefaultQueryTimeout bounds a single store query.
	DefaultQueryTimeout = 10 * time.Second

	// DefaultTxTimeout bounds a store transaction.
	DefaultTxTimeout = 30 * time.Second

	// DefaultCacheTimeout bounds a cache get or set. Cache timeouts are
	// absorbed: the caller sees a miss, not an error.
	DefaultCacheTimeout = 3 * time.Second

	// External-call deadlines by subtype.
	DefaultAPITimeout     = 15 * time.Second
	DefaultPaymentTimeout = 30 * time.Second
	DefaultUploadTimeout  = 60 * time.Second
)

// WithTimeout races op against the deadline. If the timer fires first, the
// result is a *TimeoutError carrying the label and deadline; op's own outcome
// is surfaced otherwise. The internal timer is always released on settlement,
// and a late-finishing op settles into a buffered channel so nothing fires
// after the caller has moved on.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, label string, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := op(ctx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{Label: label, Timeout: timeout}
		}
		return zero, ctx.Err()
	}
}

// WithQueryTimeout applies the store-query deadline. Timeouts propagate as
// typed errors; queries get no silent fallback.
func WithQueryTimeout[T any](ctx context.Context, label string, op func(context.Context) (T, error)) (T, error) {
	return WithTimeout(ctx, DefaultQueryTimeout, label, op)
}

// WithTxTimeout applies the transaction deadline. On timeout the rollback
// hook runs (on a fresh, uncancelled context) before the error propagates, so
// a half-finished transaction is not left holding locks.
func WithTxTimeout[T any](ctx context.Context, label string, op func(context.Context) (T, error), rollback func(context.Context) error) (T, error) {
	return withTxTimeout(ctx, DefaultTxTimeout, label, op, rollback)
}

func withTxTimeout[T any](ctx context.Context, timeout time.Duration, label string, op func(context.Context) (T, error), rollback func(context.Context) error) (T, error) {
	v, err := WithTimeout(ctx, timeout, label, op)

	var te *TimeoutError
	if errors.As(err, &te) && rollback != nil {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rbErr := rollback(rbCtx); rbErr != nil {
			zap.L().Warn("rollback after transaction timeout failed",
				zap.String("label", label), zap.Error(rbErr))
		}
	}
	return v, err
}

// WithCacheTimeout applies the cache deadline. Any error, including the
// timeout, is absorbed and reported as a miss so callers fall back to the
// source of truth.
func WithCacheTimeout[T any](ctx context.Context, label string, op func(context.Context) (T, error)) (T, bool) {
	v, err := WithTimeout(ctx, DefaultCacheTimeout, label, op)
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// ExternalKind selects the deadline for an external call.
type ExternalKind int

const (
	// ExternalAPI is a third-party API call.
	ExternalAPI ExternalKind = iota
	// ExternalPayment is a payment confirmation call.
	ExternalPayment
	// ExternalUpload is a media upload.
	ExternalUpload
)

func (k ExternalKind) timeout() time.Duration {
	switch k {
	case ExternalPayment:
		return DefaultPaymentTimeout
	case ExternalUpload:
		return DefaultUploadTimeout
	default:
		return DefaultAPITimeout
	}
}

// WithExternalTimeout applies the deadline for the given external subtype.
// Timeouts propagate.
func WithExternalTimeout[T any](ctx context.Context, kind ExternalKind, label string, op func(context.Context) (T, error)) (T, error) {
	return WithTimeout(ctx, kind.timeout(), label, op)
}

// Backoff parameters for RetryWithTimeout.
const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// backoffDelay returns min(base*2^(attempt-1), limit).
func backoffDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// RetryWithTimeout runs op up to maxAttempts times, each attempt under its
// own independent deadline, with exponential backoff between attempts. The
// error from the final attempt is the one surfaced.
func RetryWithTimeout[T any](ctx context.Context, maxAttempts int, timeout time.Duration, label string, op func(context.Context) (T, error)) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		val     T
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		val, lastErr = WithTimeout(ctx, timeout, label, op)
		if lastErr == nil {
			return val, nil
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(backoffDelay(attempt, retryBaseDelay, retryMaxDelay)):
		}
	}

	var zero T
	return zero, lastErr
}
