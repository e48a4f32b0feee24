package authority

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestConfig(t *testing.T) Config {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = priv
	return cfg
}

// staticIdentity is an in-memory IdentityProvider whose roles can be
// mutated mid-test to exercise re-derivation.
type staticIdentity struct {
	mu       sync.Mutex
	subjects map[string]*Subject
}

func newStaticIdentity(subjects ...*Subject) *staticIdentity {
	m := make(map[string]*Subject, len(subjects))
	for _, s := range subjects {
		copied := *s
		m[s.SubjectID] = &copied
	}
	return &staticIdentity{subjects: m}
}

func (p *staticIdentity) GetSubjectByID(_ context.Context, subjectID string) (*Subject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.subjects[subjectID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (p *staticIdentity) setRole(subjectID string, role Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.subjects[subjectID]; ok {
		s.Role = role
	}
}

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func buildTestEngine(t *testing.T, cfg Config, identity IdentityProvider, sink AuditSink) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(identity)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

var testSubject = &Subject{SubjectID: "sub-1", Email: "user@example.com", Role: RoleUser}
var testAdmin = &Subject{SubjectID: "adm-1", Email: "admin@example.com", Role: RoleAdmin}

func newDefaultEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	return buildTestEngine(t, newTestConfig(t), newStaticIdentity(testSubject, testAdmin), nil)
}

var testClient = ClientInfo{IPAddress: "192.0.2.1", UserAgent: "test-agent"}
