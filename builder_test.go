package authority

import (
	"testing"
)

func TestBuilderRequiresIdentityProvider(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	_, err := New().
		WithConfig(newTestConfig(t)).
		WithRedis(rdb).
		Build()
	if err == nil {
		t.Fatal("Build without identity provider succeeded")
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	_, err := New().
		WithConfig(newTestConfig(t)).
		WithIdentityProvider(newStaticIdentity(testSubject)).
		Build()
	if err == nil {
		t.Fatal("Build without store or redis client succeeded")
	}
}

func TestBuilderRejectsThrottleWithoutRedis(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Security.EnableRefreshThrottle = true

	_, err := New().
		WithConfig(cfg).
		WithTokenStore(nil).
		WithIdentityProvider(newStaticIdentity(testSubject)).
		Build()
	if err == nil {
		t.Fatal("Build with throttle but no redis succeeded")
	}
}

func TestBuilderRejectsMissingKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := DefaultConfig() // no signing key
	_, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(newStaticIdentity(testSubject)).
		Build()
	if err == nil {
		t.Fatal("Build without signing key succeeded")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	b := New().
		WithConfig(newTestConfig(t)).
		WithRedis(rdb).
		WithIdentityProvider(newStaticIdentity(testSubject))

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build on the same builder succeeded")
	}
}

func TestNilEngineIsInert(t *testing.T) {
	var e *Engine

	e.Close()
	if got := e.AuditDropped(); got != 0 {
		t.Errorf("AuditDropped on nil engine = %d", got)
	}
	snap := e.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Errorf("MetricsSnapshot on nil engine = %+v", snap)
	}
	if r := e.SecurityReport(); r.RotationEnabled {
		t.Error("SecurityReport on nil engine reports active protections")
	}
}
