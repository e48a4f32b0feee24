package authority

import (
	"context"
	"errors"

	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/store"
)

// VerifyPrivilege re-derives a caller's privilege level from the durable
// identity store before a privileged action. The role embedded in the
// presented token is never trusted: claims are cached at issuance time
// and a role can be revoked mid-session. A disagreement between the
// durable role and claimedRole returns [ErrRoleMismatch] — either a stale
// token that will self-heal on the next rotation, or tampering.
//
// Every invocation, granted or not, appends one record to the admin audit
// log.
func (e *Engine) VerifyPrivilege(ctx context.Context, subjectID string, claimedRole Role, action, resource string) (Role, error) {
	if e == nil || e.tokenStore == nil {
		return "", ErrEngineNotReady
	}

	durableRole, err := e.durableRole(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			e.recordAdminCheck(ctx, subjectID, action, resource, false, "subject not found")
			return "", ErrInsufficientPrivilege
		}
		return "", mapStoreErr(err)
	}

	if durableRole != claimedRole {
		e.metricInc(MetricRoleMismatch)
		e.metricInc(MetricAdminDenied)
		e.recordAdminCheck(ctx, subjectID, action, resource, false, "role mismatch")
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventRoleMismatch,
			SubjectID: subjectID,
			Error:     "token role disagrees with durable store",
			Metadata: map[string]string{
				"claimed_role": string(claimedRole),
				"durable_role": string(durableRole),
			},
		})
		e.logger.Warn().
			Str("subject_id", subjectID).
			Str("claimed_role", string(claimedRole)).
			Str("durable_role", string(durableRole)).
			Msg("role mismatch between token and durable store")
		return "", ErrRoleMismatch
	}

	if durableRole != RoleAdmin {
		e.metricInc(MetricAdminDenied)
		e.recordAdminCheck(ctx, subjectID, action, resource, false, "insufficient privilege")
		return "", ErrInsufficientPrivilege
	}

	e.metricInc(MetricAdminGranted)
	e.recordAdminCheck(ctx, subjectID, action, resource, true, "")
	return durableRole, nil
}

// durableRole reads the subject's role through the role cache. Cached
// entries live at most the configured TTL; a revocation becomes visible no
// later than that.
func (e *Engine) durableRole(ctx context.Context, subjectID string) (Role, error) {
	now := e.now()
	key := roleCacheKey(subjectID)
	if v, ok := e.roleCache.Get(key, now); ok {
		if role, ok := v.(Role); ok {
			return role, nil
		}
	}

	subject, err := e.identity.GetSubjectByID(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if subject == nil {
		return "", ErrSubjectNotFound
	}

	e.roleCache.Set(key, subject.Role, now.Add(e.config.Cache.RoleTTL))
	return subject.Role, nil
}

// recordAdminCheck appends the durable audit row and mirrors it to the
// in-process dispatcher. The authorization decision stands even when the
// append fails; the failure is logged for reconciliation.
func (e *Engine) recordAdminCheck(ctx context.Context, subjectID, action, resource string, granted bool, reason string) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec := &store.AuditRecord{
		SubjectID: subjectID,
		Action:    action,
		Resource:  resource,
		Granted:   granted,
		Timestamp: e.now(),
	}
	if err := e.tokenStore.AppendAuditRecord(sctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("subject_id", subjectID).Str("action", action).Msg("admin audit append failed")
	}

	e.emitAudit(ctx, internalaudit.Event{
		EventType: auditEventAdminCheck,
		SubjectID: subjectID,
		Success:   granted,
		Error:     reason,
		Metadata: map[string]string{
			"action":   action,
			"resource": resource,
		},
	})
}

func roleCacheKey(subjectID string) string {
	return "role:" + subjectID
}
