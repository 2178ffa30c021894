package resilience

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// WriteError maps a protection-layer error to the HTTP contract: 503 with
// Retry-After for an open circuit, 408 for a timeout, 500 otherwise. No
// internal error detail crosses this boundary.
func WriteError(w http.ResponseWriter, err error) {
	var (
		cbErr *CircuitBreakerError
		toErr *TimeoutError
	)

	switch {
	case errors.As(err, &cbErr):
		seconds := int(cbErr.TimeUntilReset.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":       "service temporarily unavailable",
			"retry_after": seconds,
		})

	case errors.As(err, &toErr):
		writeJSON(w, http.StatusRequestTimeout, map[string]any{
			"error":     "request timed out",
			"operation": toErr.Label,
		})

	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "internal error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
