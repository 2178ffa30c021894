package ratelimit

import (
	"testing"
	"time"
)

func TestWindowDurations(t *testing.T) {
	tests := []struct {
		w    Window
		want time.Duration
	}{
		{WindowBurst, 10 * time.Second},
		{WindowMinute, time.Minute},
		{WindowHour, time.Hour},
	}
	for _, tt := range tests {
		if got := tt.w.Duration(); got != tt.want {
			t.Errorf("Duration(%s) = %v, want %v", tt.w, got, tt.want)
		}
	}
}

func TestDefaultCategories_AuthLooserOutsideProduction(t *testing.T) {
	prod := DefaultCategories("production")[CategoryAuth]
	dev := DefaultCategories("development")[CategoryAuth]

	if dev.PerMinute <= prod.PerMinute {
		t.Errorf("dev auth per-minute = %d, want materially looser than prod %d", dev.PerMinute, prod.PerMinute)
	}
	if dev.Burst <= prod.Burst {
		t.Errorf("dev auth burst = %d, want looser than prod %d", dev.Burst, prod.Burst)
	}
}

func TestDefaultCategories_AllCategoriesPresent(t *testing.T) {
	cats := DefaultCategories("production")
	for _, c := range []string{CategoryPublic, CategoryAuth, CategoryCart, CategoryCheckout, CategoryAdmin} {
		lim, ok := cats[c]
		if !ok {
			t.Errorf("category %q missing", c)
			continue
		}
		if lim.PerMinute <= 0 || lim.PerHour <= 0 || lim.Burst <= 0 {
			t.Errorf("category %q has non-positive thresholds: %+v", c, lim)
		}
	}
}
