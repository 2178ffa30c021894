// Package cache is the namespace-organized read-through cache in front of the
// storefront's persistent store.
//
// Keys are grouped into fixed logical namespaces (products, orders, hero
// media, per-user carts, ...) that are invalidated together: a product write
// clears every product-shaped key in one call instead of tracking individual
// entries.
//
// Every operation absorbs its own errors. A broken or slow cache degrades
// performance, never correctness: reads report a miss and writes no-op, so
// callers always fall back to the source of truth.
package cache
