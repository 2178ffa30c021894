// Package ratelimit provides multi-window admission control for storefront
// traffic, keyed by (identifier, category).
//
// Every check increments fixed-window counters in the shared keyed store for
// three concurrent windows: burst (10s), minute (60s), and hour (3600s).
// Windows are evaluated minute first, then hour, then burst, and the first
// exceeded window short-circuits the check.
//
// The limiter fails open: if the counter store is unreachable the request is
// allowed with a synthetic result. Storefront availability outranks strict
// enforcement; do not change this to fail-closed.
package ratelimit
