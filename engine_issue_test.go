package authority

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestIssueProducesFullCredentialSet(t *testing.T) {
	engine, cleanup := newDefaultEngine(t)
	defer cleanup()
	ctx := context.Background()

	creds, err := engine.Issue(ctx, *testSubject, testClient)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if creds.AccessToken == "" || creds.RefreshToken == "" || creds.CSRFToken == "" {
		t.Fatalf("incomplete credentials: %+v", creds)
	}
	if creds.SessionID == "" || creds.FamilyID == "" {
		t.Fatalf("missing session or family ID: %+v", creds)
	}
	if creds.AccessExpiresAt.IsZero() {
		t.Fatal("AccessExpiresAt is zero")
	}

	// The access token must validate immediately and carry the subject.
	res, err := engine.Validate(ctx, creds.AccessToken)
	if err != nil {
		t.Fatalf("Validate of fresh token failed: %v", err)
	}
	if res.SubjectID != testSubject.SubjectID {
		t.Errorf("SubjectID = %q, want %q", res.SubjectID, testSubject.SubjectID)
	}
	if res.Email != testSubject.Email {
		t.Errorf("Email = %q, want %q", res.Email, testSubject.Email)
	}
	if res.Role != RoleUser {
		t.Errorf("Role = %q, want %q", res.Role, RoleUser)
	}
	if res.SessionID != creds.SessionID {
		t.Errorf("SessionID = %q, want %q", res.SessionID, creds.SessionID)
	}

	// The session is live.
	count, err := engine.GetActiveSessionCount(ctx, testSubject.SubjectID)
	if err != nil {
		t.Fatalf("GetActiveSessionCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("active sessions = %d, want 1", count)
	}
}

func TestIssueDistinctFamiliesPerLogin(t *testing.T) {
	engine, cleanup := newDefaultEngine(t)
	defer cleanup()
	ctx := context.Background()

	first, err := engine.Issue(ctx, *testSubject, testClient)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	second, err := engine.Issue(ctx, *testSubject, testClient)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if first.FamilyID == second.FamilyID {
		t.Error("two logins share a token family")
	}
	if first.SessionID == second.SessionID {
		t.Error("two logins share a session")
	}
	if first.CSRFToken == second.CSRFToken {
		t.Error("two logins share a CSRF token")
	}
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	engine, cleanup := newDefaultEngine(t)
	defer cleanup()

	_, err := engine.Issue(context.Background(), Subject{}, testClient)
	if !errors.Is(err, ErrIssuanceFailed) {
		t.Fatalf("Issue with empty subject = %v, want ErrIssuanceFailed", err)
	}
}

func TestIssueEvictsOldestSessionAtCap(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Session.MaxSessionsPerSubject = 2
	engine, cleanup := buildTestEngine(t, cfg, newStaticIdentity(testSubject), nil)
	defer cleanup()
	ctx := context.Background()

	var sessions []string
	for i := 0; i < 3; i++ {
		creds, err := engine.Issue(ctx, *testSubject, testClient)
		if err != nil {
			t.Fatalf("Issue %d failed: %v", i, err)
		}
		sessions = append(sessions, creds.SessionID)
	}

	live, err := engine.ListActiveSessions(ctx, testSubject.SubjectID)
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("live sessions = %d, want 2", len(live))
	}

	// The first login's session was evicted; the later two remain,
	// oldest first.
	if live[0].SessionID != sessions[1] || live[1].SessionID != sessions[2] {
		t.Errorf("live = [%s %s], want [%s %s]",
			live[0].SessionID, live[1].SessionID, sessions[1], sessions[2])
	}
	if _, err := engine.GetSessionInfo(ctx, sessions[0]); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("evicted session lookup = %v, want ErrSessionNotFound", err)
	}

	if got := engine.MetricsSnapshot().Counters[MetricSessionEvicted]; got != 1 {
		t.Errorf("MetricSessionEvicted = %d, want 1", got)
	}
}

func TestIssueUncappedWhenLimitDisabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Session.MaxSessionsPerSubject = 0
	engine, cleanup := buildTestEngine(t, cfg, newStaticIdentity(testSubject), nil)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := engine.Issue(ctx, *testSubject, testClient); err != nil {
			t.Fatalf("Issue %d failed: %v", i, err)
		}
	}

	count, err := engine.GetActiveSessionCount(ctx, testSubject.SubjectID)
	if err != nil {
		t.Fatalf("GetActiveSessionCount failed: %v", err)
	}
	if count != 8 {
		t.Fatalf("active sessions = %d, want 8", count)
	}
}

func TestIssueStoreDownIsRetryableFailure(t *testing.T) {
	cfg := newTestConfig(t)
	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(newStaticIdentity(testSubject)).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	mr.Close()

	_, err = engine.Issue(context.Background(), *testSubject, testClient)
	if !errors.Is(err, ErrIssuanceFailed) {
		t.Fatalf("Issue with store down = %v, want ErrIssuanceFailed", err)
	}
	// The wrapped cause marks it as an availability problem, not a
	// credential rejection.
	if want := ErrStoreUnavailable.Error(); !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err, want)
	}
}
