package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransient_TaggedKinds(t *testing.T) {
	tests := []struct {
		kind StoreErrorKind
		want bool
	}{
		{KindUnreachable, true},
		{KindTimeout, true},
		{KindNotConnected, true},
		{KindTerminal, false},
	}
	for _, tt := range tests {
		err := NewStoreError(tt.kind, errors.New("x"))
		if got := Transient(err); got != tt.want {
			t.Errorf("Transient(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestTransient_WrappedStoreError(t *testing.T) {
	err := fmt.Errorf("query products: %w", NewStoreError(KindUnreachable, errors.New("down")))
	if !Transient(err) {
		t.Error("Transient() = false for wrapped tagged error, want true")
	}
}

func TestClassify_UntaggedErrors(t *testing.T) {
	tests := []struct {
		msg  string
		want StoreErrorKind
	}{
		{"Can't reach database server at db:5432", KindUnreachable},
		{"dial tcp: connection refused", KindUnreachable},
		{"read tcp: i/o timeout", KindTimeout},
		{"query timed out", KindTimeout},
		{"engine is not yet connected", KindNotConnected},
		{"duplicate key value violates unique constraint", KindTerminal},
		{"record not found", KindTerminal},
	}
	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestTransient_Nil(t *testing.T) {
	if Transient(nil) {
		t.Error("Transient(nil) = true, want false")
	}
}

func TestCircuitBreakerError_Message(t *testing.T) {
	err := &CircuitBreakerError{Name: "orders-db", TimeUntilReset: 30 * time.Second}
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	var target *CircuitBreakerError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &target) {
		t.Error("errors.As failed on wrapped CircuitBreakerError")
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStoreError(KindTimeout, cause)
	if !errors.Is(err, cause) {
		t.Error("StoreError does not unwrap to its cause")
	}
}
