package authority

import (
	"context"
	"errors"
	"time"

	"github.com/axisboard/authority/store"
)

// SessionInfo is the safe introspection view for a session. It excludes
// token material and family identifiers.
type SessionInfo struct {
	SessionID      string
	SubjectID      string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// GetActiveSessionCount returns the number of live sessions for a subject.
func (e *Engine) GetActiveSessionCount(ctx context.Context, subjectID string) (int, error) {
	sessions, err := e.ActiveSessions(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// ListActiveSessions returns introspection views for a subject's live
// sessions, oldest first.
func (e *Engine) ListActiveSessions(ctx context.Context, subjectID string) ([]SessionInfo, error) {
	sessions, err := e.ActiveSessions(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionInfo(sess))
	}
	return out, nil
}

// GetSessionInfo returns the introspection view for one session.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.tokenStore == nil {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	sess, err := e.tokenStore.GetSession(sctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, mapStoreErr(err)
	}

	info := toSessionInfo(sess)
	return &info, nil
}

// Health reports backend availability. Stores without a latency probe
// report available with zero latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.tokenStore == nil {
		return HealthStatus{}
	}

	p, ok := e.tokenStore.(pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}

	latency, err := p.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}

func toSessionInfo(sess *store.Session) SessionInfo {
	return SessionInfo{
		SessionID:      sess.SessionID,
		SubjectID:      sess.SubjectID,
		IPAddress:      sess.IPAddress,
		UserAgent:      sess.UserAgent,
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
		ExpiresAt:      sess.ExpiresAt,
	}
}
