package cache

import (
	"testing"
	"time"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL(0)
	now := time.Now()

	c.Set("k", "v", now.Add(time.Minute))

	got, ok := c.Get("k", now)
	if !ok || got != "v" {
		t.Fatalf("Get = (%v, %v), want (v, true)", got, ok)
	}

	// Past the deadline the entry must not be served, even if it is
	// still physically present.
	if _, ok := c.Get("k", now.Add(2*time.Minute)); ok {
		t.Fatal("Get past deadline returned a value")
	}
	// Exactly at the deadline counts as expired.
	if _, ok := c.Get("k", now.Add(time.Minute)); ok {
		t.Fatal("Get at deadline returned a value")
	}
}

func TestTTLMiss(t *testing.T) {
	c := NewTTL(0)
	if _, ok := c.Get("absent", time.Now()); ok {
		t.Fatal("Get of absent key returned a value")
	}
}

func TestTTLDelete(t *testing.T) {
	c := NewTTL(0)
	now := time.Now()

	c.Set("k", 1, now.Add(time.Minute))
	c.Delete("k")

	if _, ok := c.Get("k", now); ok {
		t.Fatal("Get after Delete returned a value")
	}
}

func TestTTLOverwrite(t *testing.T) {
	c := NewTTL(0)
	now := time.Now()

	c.Set("k", 1, now.Add(time.Minute))
	c.Set("k", 2, now.Add(2*time.Minute))

	got, ok := c.Get("k", now.Add(90*time.Second))
	if !ok || got != 2 {
		t.Fatalf("Get = (%v, %v), want (2, true)", got, ok)
	}
}

func TestTTLZeroDeadlineIgnored(t *testing.T) {
	c := NewTTL(0)
	c.Set("k", "v", time.Time{})
	if c.Len() != 0 {
		t.Fatalf("Len = %d after zero-deadline Set, want 0", c.Len())
	}
}

func TestTTLSweep(t *testing.T) {
	c := NewTTL(4)
	past := time.Now().Add(-time.Minute)

	for _, k := range []string{"a", "b", "c"} {
		c.Set(k, 1, past)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d before sweep, want 3", c.Len())
	}

	// The fourth write triggers the sweep; the three expired entries go,
	// the live one stays.
	c.Set("d", 1, time.Now().Add(time.Minute))
	if c.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1", c.Len())
	}
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	c.Set("k", "v", time.Now().Add(time.Minute))
	if _, ok := c.Get("k", time.Now()); ok {
		t.Fatal("Nop.Get returned a value")
	}
	c.Delete("k")
}
