package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func bearerToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return "Bearer " + signed
}

func TestIdentify_BearerSubject(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/cart", nil)
	r.Header.Set("Authorization", bearerToken(t, "user-42"))

	if got := Identify(r); got != "user:user-42" {
		t.Errorf("Identify() = %q, want user:user-42", got)
	}
}

func TestIdentify_MalformedTokenFallsBackToIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/cart", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	r.RemoteAddr = "10.1.2.3:50000"

	if got := Identify(r); got != "ip:10.1.2.3" {
		t.Errorf("Identify() = %q, want ip:10.1.2.3", got)
	}
}

func TestIdentify_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/products", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.RemoteAddr = "10.0.0.1:33000"

	if got := Identify(r); got != "ip:203.0.113.7" {
		t.Errorf("Identify() = %q, want the original client IP", got)
	}
}

func TestIdentify_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/products", nil)
	r.RemoteAddr = "192.0.2.9:1234"

	if got := Identify(r); got != "ip:192.0.2.9" {
		t.Errorf("Identify() = %q, want ip:192.0.2.9", got)
	}
}
