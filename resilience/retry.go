package resilience

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StoreConn is the persistent-store client surface the retry executor needs:
// a trivial round-trip probe plus an explicit reconnect cycle.
type StoreConn interface {
	// Ping performs a trivial round trip to verify connectivity.
	Ping(ctx context.Context) error

	// Close tears down the connection. Errors are ignored by the executor.
	Close(ctx context.Context) error

	// Connect (re-)establishes the connection.
	Connect(ctx context.Context) error
}

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the backoff base; the wait before attempt n+1 is
	// min(BaseDelay*2^(n-1), MaxDelay).
	// Default: 500ms
	BaseDelay time.Duration

	// MaxDelay caps the backoff.
	// Default: 5 seconds
	MaxDelay time.Duration

	// ReconnectAttempts bounds the Connect retries inside one reconnect
	// sequence.
	// Default: 3
	ReconnectAttempts int

	// ReconnectDelay is the wait between Close and Connect, and between
	// Connect retries.
	// Default: 500ms
	ReconnectDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 3
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 500 * time.Millisecond
	}
	return c
}

// RetryExecutor retries transient store failures with reconnection. Terminal
// errors propagate immediately; transient ones (tagged StoreErrors or
// connection-class driver errors) trigger a reconnect cycle and another
// attempt, up to the configured cap.
type RetryExecutor struct {
	conn   StoreConn
	config RetryConfig
	log    *zap.Logger
}

// RetryOption configures a RetryExecutor.
type RetryOption func(*RetryExecutor)

// WithRetryLogger sets the logger.
func WithRetryLogger(log *zap.Logger) RetryOption {
	return func(e *RetryExecutor) { e.log = log }
}

// NewRetryExecutor creates a retry executor over the given store connection.
func NewRetryExecutor(conn StoreConn, config RetryConfig, opts ...RetryOption) *RetryExecutor {
	e := &RetryExecutor{
		conn:   conn,
		config: config.withDefaults(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op with transient-failure retry. Before each attempt the store is
// probed; a failed probe or a transient op failure triggers the reconnect
// sequence before the next attempt.
func (e *RetryExecutor) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if err := e.conn.Ping(ctx); err != nil {
			e.log.Warn("store probe failed", zap.Int("attempt", attempt), zap.Error(err))
			if rErr := e.reconnect(ctx); rErr != nil {
				e.log.Warn("store reconnect failed", zap.Error(rErr))
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		if !Transient(err) {
			return err
		}
		lastErr = err

		if attempt == e.config.MaxAttempts {
			break
		}

		e.log.Warn("transient store error, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if rErr := e.reconnect(ctx); rErr != nil {
			e.log.Warn("store reconnect failed", zap.Error(rErr))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt, e.config.BaseDelay, e.config.MaxDelay)):
		}
	}

	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// reconnect runs the explicit recovery sequence: disconnect, wait, then
// reconnect with its own bounded retry.
func (e *RetryExecutor) reconnect(ctx context.Context) error {
	_ = e.conn.Close(ctx)

	var lastErr error
	for i := 0; i < e.config.ReconnectAttempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.config.ReconnectDelay):
		}

		if lastErr = e.conn.Connect(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// ExecuteWithRetry runs a value-returning operation through the executor.
func ExecuteWithRetry[T any](ctx context.Context, e *RetryExecutor, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
