package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identify derives the rate-limit identifier for a request. Authenticated
// callers are bucketed per user by the bearer token's subject claim;
// everything else is bucketed per client IP.
//
// The token is parsed without signature verification: admission control only
// needs a stable bucket key, and real verification happens downstream in the
// auth layer. A forged subject just moves the forger into a different bucket.
func Identify(r *http.Request) string {
	if sub := subjectFromBearer(r.Header.Get("Authorization")); sub != "" {
		return "user:" + sub
	}
	return "ip:" + clientIP(r)
}

func subjectFromBearer(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return ""
	}

	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// clientIP picks the original client address: first entry of X-Forwarded-For
// when present, else RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
