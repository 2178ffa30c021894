package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "v" {
		t.Errorf("Get() = %q, want %q", val, "v")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Incr(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if got != want {
			t.Errorf("Incr() = %d, want %d", got, want)
		}
	}

	// TTL is set by the first increment only.
	ttl, err := s.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL() = %v, want (0, 1m]", ttl)
	}
}

func TestMemoryStore_IncrResetsAfterExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Incr(ctx, "counter", 20*time.Millisecond); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got, err := s.Incr(ctx, "counter", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if got != 1 {
		t.Errorf("Incr() after window expiry = %d, want 1", got)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.TTL(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TTL(missing) error = %v, want ErrNotFound", err)
	}

	_ = s.Set(ctx, "forever", "v", 0)
	if _, err := s.TTL(ctx, "forever"); !errors.Is(err, ErrNoTTL) {
		t.Errorf("TTL(no expiry) error = %v, want ErrNoTTL", err)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "cache:products:1", "a", 0)
	_ = s.Set(ctx, "cache:products:2", "b", 0)
	_ = s.Set(ctx, "cache:orders:1", "c", 0)

	keys, err := s.Keys(ctx, "cache:products:*")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys() returned %d keys, want 2: %v", len(keys), keys)
	}
	for _, k := range keys {
		if k == "cache:orders:1" {
			t.Errorf("Keys() matched unrelated key %q", k)
		}
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "a", "1", 0)
	_ = s.Set(ctx, "b", "2", 0)

	if err := s.Delete(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(a) after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Janitor(t *testing.T) {
	s := NewMemoryStore(WithCleanupEvery(10 * time.Millisecond))
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", 15*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	s.mu.Lock()
	_, still := s.entries["k"]
	s.mu.Unlock()
	if still {
		t.Error("janitor did not remove expired entry")
	}
}
