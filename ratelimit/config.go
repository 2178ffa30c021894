package ratelimit

import "time"

// Window identifies one of the three concurrent rate windows.
type Window string

const (
	// WindowBurst is the 10-second window.
	WindowBurst Window = "burst"
	// WindowMinute is the 60-second window.
	WindowMinute Window = "minute"
	// WindowHour is the 3600-second window.
	WindowHour Window = "hour"
)

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowBurst:
		return 10 * time.Second
	case WindowHour:
		return time.Hour
	default:
		return time.Minute
	}
}

// Traffic categories used by the storefront handlers.
const (
	CategoryPublic   = "public"
	CategoryAuth     = "auth"
	CategoryCart     = "cart"
	CategoryCheckout = "checkout"
	CategoryAdmin    = "admin"
)

// Limits holds the thresholds for one traffic category.
type Limits struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
	Burst     int `mapstructure:"burst"`
}

func (l Limits) forWindow(w Window) int {
	switch w {
	case WindowBurst:
		return l.Burst
	case WindowHour:
		return l.PerHour
	default:
		return l.PerMinute
	}
}

// DefaultCategories returns the per-category thresholds. Login traffic gets
// materially looser limits outside production so local testing and staging
// runs are not throttled into uselessness.
func DefaultCategories(env string) map[string]Limits {
	auth := Limits{PerMinute: 10, PerHour: 100, Burst: 5}
	if env != "production" {
		auth = Limits{PerMinute: 100, PerHour: 1000, Burst: 50}
	}

	return map[string]Limits{
		CategoryPublic:   {PerMinute: 100, PerHour: 2000, Burst: 25},
		CategoryAuth:     auth,
		CategoryCart:     {PerMinute: 60, PerHour: 600, Burst: 15},
		CategoryCheckout: {PerMinute: 20, PerHour: 200, Burst: 8},
		CategoryAdmin:    {PerMinute: 120, PerHour: 2400, Burst: 30},
	}
}
