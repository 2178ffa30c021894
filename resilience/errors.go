package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrQueueClosed is returned for tasks submitted to, or still pending in,
	// a closed query queue.
	ErrQueueClosed = errors.New("resilience: query queue closed")

	// ErrRetriesExhausted wraps the last transient error once the retry
	// budget is spent.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")
)

// CircuitBreakerError is returned when an execution is refused by an open
// breaker. It carries the time remaining until the breaker will allow a
// trial request, so handlers can emit a Retry-After.
type CircuitBreakerError struct {
	Name           string
	TimeUntilReset time.Duration
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("resilience: circuit %q open, retry in %s", e.Name, e.TimeUntilReset.Round(time.Millisecond))
}

// HTTPStatus returns the status handlers should respond with.
func (e *CircuitBreakerError) HTTPStatus() int { return http.StatusServiceUnavailable }

// TimeoutError is returned when an operation misses its deadline. Label names
// the operation for logs and client messages.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: %s timed out after %s", e.Label, e.Timeout)
}

// HTTPStatus returns the status handlers should respond with.
func (e *TimeoutError) HTTPStatus() int { return http.StatusRequestTimeout }

// StoreErrorKind tags errors from the persistent store at the point they are
// raised, so retry classification does not depend on driver message text.
type StoreErrorKind int

const (
	// KindTerminal marks errors that must not be retried.
	KindTerminal StoreErrorKind = iota
	// KindUnreachable marks connection-level failures (server down, refused).
	KindUnreachable
	// KindTimeout marks store-side timeouts.
	KindTimeout
	// KindNotConnected marks operations attempted before the client engine
	// finished connecting.
	KindNotConnected
)

func (k StoreErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindNotConnected:
		return "not-connected"
	default:
		return "terminal"
	}
}

// Transient reports whether the kind is retried by the retry executor.
func (k StoreErrorKind) Transient() bool {
	switch k {
	case KindUnreachable, KindTimeout, KindNotConnected:
		return true
	default:
		return false
	}
}

// StoreError wraps a persistent-store error with its kind tag.
type StoreError struct {
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("resilience: store error (%s): %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError tags err with kind.
func NewStoreError(kind StoreErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Err: err}
}

// Transient reports whether err should be retried. Tagged errors are
// classified by their kind; untagged errors are run through Classify so that
// foreign driver errors entering this layer still get a best-effort tag.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind.Transient()
	}
	return Classify(err).Transient()
}

// driver message fragments that indicate a connection-class failure; only
// consulted for errors that were not tagged at the raise site.
var transientFragments = map[string]StoreErrorKind{
	"can't reach database server": KindUnreachable,
	"connection refused":          KindUnreachable,
	"connection reset":            KindUnreachable,
	"broken pipe":                 KindUnreachable,
	"i/o timeout":                 KindTimeout,
	"timed out":                   KindTimeout,
	"not yet connected":           KindNotConnected,
}

// Classify maps an untagged error to a StoreErrorKind. This is the single
// boundary where message matching is still allowed; everything inside this
// module raises tagged StoreErrors instead.
func Classify(err error) StoreErrorKind {
	if err == nil {
		return KindTerminal
	}
	msg := strings.ToLower(err.Error())
	for fragment, kind := range transientFragments {
		if strings.Contains(msg, fragment) {
			return kind
		}
	}
	return KindTerminal
}
