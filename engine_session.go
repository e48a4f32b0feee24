package authority

import (
	"context"
	"errors"
	"strconv"

	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/store"
)

// TouchSession checks a session's absolute and idle timeouts on a
// qualifying request and records the activity. Either timeout violation
// deletes the session and returns [ErrSessionExpired]; the caller treats
// that as a logout.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) error {
	if e == nil || e.tokenStore == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	sess, err := e.tokenStore.GetSession(sctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return mapStoreErr(err)
	}

	now := e.now()
	absoluteExpired := !now.Before(sess.ExpiresAt)
	idleExpired := now.Sub(sess.LastActivityAt) > e.config.Session.IdleTimeout
	if absoluteExpired || idleExpired {
		if err := e.tokenStore.DeleteSession(sctx, sessionID); err != nil {
			return mapStoreErr(err)
		}
		e.metricInc(MetricSessionExpired)
		reason := "idle timeout"
		if absoluteExpired {
			reason = "absolute timeout"
		}
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventSessionExpired,
			SubjectID: sess.SubjectID,
			SessionID: sessionID,
			Error:     reason,
		})
		return ErrSessionExpired
	}

	if err := e.tokenStore.UpdateSessionActivity(sctx, sessionID, now); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// touchQuiet is the best-effort touch used on the rotation path.
func (e *Engine) touchQuiet(ctx context.Context, sessionID string) error {
	return e.TouchSession(ctx, sessionID)
}

// ActiveSessions returns the subject's live sessions, oldest first.
func (e *Engine) ActiveSessions(ctx context.Context, subjectID string) ([]*store.Session, error) {
	if e == nil || e.tokenStore == nil {
		return nil, ErrEngineNotReady
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	sessions, err := e.tokenStore.SessionsForSubject(sctx, subjectID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return sessions, nil
}

// Logout ends one login: the session is deleted and its token family
// revoked, so neither the refresh chain nor the session survives. Access
// tokens already issued remain valid until their own short expiry unless
// the caller also places them on the revocation list.
func (e *Engine) Logout(ctx context.Context, subjectID, sessionID, familyID string) error {
	if e == nil || e.tokenStore == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.tokenStore.RevokeFamily(sctx, familyID); err != nil {
		return mapStoreErr(err)
	}
	if err := e.tokenStore.DeleteSession(sctx, sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return mapStoreErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, internalaudit.Event{
		EventType: auditEventLogoutSession,
		SubjectID: subjectID,
		SessionID: sessionID,
		FamilyID:  familyID,
		Success:   true,
	})
	return nil
}

// LogoutAll is the administrative revocation path: every session and every
// token family belonging to the subject is terminated.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	if e == nil || e.tokenStore == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.tokenStore.RevokeFamiliesForSubject(sctx, subjectID); err != nil {
		return mapStoreErr(err)
	}

	sessions, err := e.tokenStore.SessionsForSubject(sctx, subjectID)
	if err != nil {
		return mapStoreErr(err)
	}
	for _, sess := range sessions {
		if err := e.tokenStore.DeleteSession(sctx, sess.SessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			return mapStoreErr(err)
		}
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, internalaudit.Event{
		EventType: auditEventLogoutAll,
		SubjectID: subjectID,
		Success:   true,
		Metadata:  map[string]string{"sessions_terminated": strconv.Itoa(len(sessions))},
	})
	return nil
}
