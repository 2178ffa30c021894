package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest("GET", "/livez", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "OK" {
		t.Errorf("body = %q, want OK", got)
	}
}

func TestHandler_Healthy(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(staticChecker("store", Healthy("reachable")))

	rec := httptest.NewRecorder()
	Handler(agg)(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["store"].Message != "reachable" {
		t.Errorf("check message = %q, want reachable", resp.Checks["store"].Message)
	}
}

func TestHandler_DegradedStillServes200(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(staticChecker("breakers", Degraded("1 open")))

	rec := httptest.NewRecorder()
	Handler(agg)(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d for degraded, want 200", rec.Code)
	}
}

func TestHandler_Unhealthy503(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(NewCheckerFunc("store", func(context.Context) Result {
		return Unhealthy("down", context.DeadlineExceeded)
	}))

	rec := httptest.NewRecorder()
	Handler(agg)(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Checks["store"].Error == "" {
		t.Error("unhealthy check is missing its error in the body")
	}
}
