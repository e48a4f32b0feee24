package authority

import (
	"testing"
	"time"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxRefreshAttempts = 10
	cfg.Security.RefreshCooldownDuration = time.Minute
	engine, cleanup := buildTestEngine(t, cfg, newStaticIdentity(testSubject), nil)
	defer cleanup()

	r := engine.SecurityReport()

	if r.SigningAlgorithm != "ed25519" {
		t.Errorf("SigningAlgorithm = %q, want ed25519", r.SigningAlgorithm)
	}
	if !r.RotationEnabled || !r.ReplayDetectionEnabled {
		t.Error("rotation or replay detection reported disabled")
	}
	if !r.SessionCapsActive {
		t.Error("SessionCapsActive = false with default cap")
	}
	if !r.RefreshThrottleActive {
		t.Error("RefreshThrottleActive = false with throttle on")
	}
	if r.AccessTTL != cfg.Token.AccessTTL {
		t.Errorf("AccessTTL = %v, want %v", r.AccessTTL, cfg.Token.AccessTTL)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none with hardened config", r.Warnings)
	}
}

func TestSecurityReportWarnsOnSoftConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Session.MaxSessionsPerSubject = 0
	engine, cleanup := buildTestEngine(t, cfg, newStaticIdentity(testSubject), nil)
	defer cleanup()

	r := engine.SecurityReport()
	if r.SessionCapsActive {
		t.Error("SessionCapsActive = true with cap disabled")
	}
	if len(r.Warnings) == 0 {
		t.Error("no warnings with session cap and throttle disabled")
	}
}
