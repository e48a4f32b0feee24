package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authority "github.com/axisboard/authority"
)

type staticIdentity struct {
	subject *authority.Subject
}

func (p staticIdentity) GetSubjectByID(_ context.Context, subjectID string) (*authority.Subject, error) {
	if p.subject != nil && p.subject.SubjectID == subjectID {
		copied := *p.subject
		return &copied, nil
	}
	return nil, nil
}

func newTestEngine(t *testing.T) (*authority.Engine, *authority.Credentials, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		mr.Close()
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	subject := &authority.Subject{SubjectID: "sub-1", Email: "user@example.com", Role: authority.RoleUser}

	cfg := authority.DefaultConfig()
	cfg.Token.PrivateKey = priv

	engine, err := authority.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(staticIdentity{subject: subject}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	creds, err := engine.Issue(context.Background(), *subject, authority.ClientInfo{IPAddress: "192.0.2.1"})
	if err != nil {
		engine.Close()
		mr.Close()
		t.Fatalf("Issue failed: %v", err)
	}

	return engine, creds, func() {
		engine.Close()
		mr.Close()
	}
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardAcceptsValidBearer(t *testing.T) {
	engine, creds, cleanup := newTestEngine(t)
	defer cleanup()

	var hit bool
	var got *authority.AuthResult
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		got, _ = AuthResultFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !hit {
		t.Fatal("handler not reached")
	}
	if got == nil || got.SubjectID != "sub-1" {
		t.Fatalf("AuthResultFromContext = %+v", got)
	}
}

func TestGuardRejections(t *testing.T) {
	engine, creds, cleanup := newTestEngine(t)
	defer cleanup()

	var hit bool
	handler := Guard(engine)(okHandler(&hit))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic " + creds.AccessToken},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer garbage"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
		}
	}
	if hit {
		t.Fatal("handler reached on rejected request")
	}
}

func TestGuardWithSessionRejectsLoggedOutSession(t *testing.T) {
	engine, creds, cleanup := newTestEngine(t)
	defer cleanup()

	var hit bool
	handler := GuardWithSession(engine)(okHandler(&hit))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status before logout = %d, want 200", rec.Code)
	}

	if err := engine.Logout(context.Background(), "sub-1", creds.SessionID, creds.FamilyID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// The access token is still cryptographically valid, but the session
	// behind it is gone.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d, want 401", rec.Code)
	}
}

func TestRequireCSRF(t *testing.T) {
	engine, creds, cleanup := newTestEngine(t)
	defer cleanup()

	var hit bool
	handler := RequireCSRF(engine)(okHandler(&hit))

	send := func(method, header, cookie string) int {
		req := httptest.NewRequest(method, "/update", nil)
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	tok := creds.CSRFToken

	if code := send("POST", tok, tok); code != http.StatusOK {
		t.Errorf("matched pair: status = %d, want 200", code)
	}
	if code := send("GET", "", ""); code != http.StatusOK {
		t.Errorf("safe method: status = %d, want 200", code)
	}
	if code := send("POST", tok, "other"); code != http.StatusForbidden {
		t.Errorf("mismatched pair: status = %d, want 403", code)
	}
	if code := send("POST", "", tok); code != http.StatusForbidden {
		t.Errorf("missing header: status = %d, want 403", code)
	}
	if code := send("POST", tok, ""); code != http.StatusForbidden {
		t.Errorf("missing cookie: status = %d, want 403", code)
	}
	if code := send("DELETE", "", ""); code != http.StatusForbidden {
		t.Errorf("unsafe method without tokens: status = %d, want 403", code)
	}
}
