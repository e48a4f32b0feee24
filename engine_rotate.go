package authority

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/internal/flows"
	"github.com/axisboard/authority/internal/rate"
)

// Rotate consumes a refresh token and returns the next generation of its
// family: a new access token, a new single-use refresh token the caller
// must store in place of the old one, and a fresh CSRF value.
//
// Presenting an already-consumed token is treated as replay: the entire
// family is revoked and [ErrReplayDetected] returned. A benign duplicate
// request (a client retrying a slow rotation) is indistinguishable from a
// stolen copy, so both terminate the chain and force re-authentication.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*Credentials, error) {
	if e == nil || e.tokenStore == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	result := flows.RunRotate(sctx, refreshToken, flows.RotateDeps{
		Store:         e.tokenStore,
		RateLimiter:   e.rateLimiter,
		ParseRefresh:  e.codec.ParseRefresh,
		LookupSubject: e.lookupSubjectClaims,
		NewID:         newID,
		Now:           e.now,
		SignAccess:    e.codec.SignAccess,
		SignRefresh:   e.codec.SignRefresh,
		MintCSRF:      e.mintCSRF,
		AccessTTL:     e.config.Token.AccessTTL,
		RefreshTTL:    e.config.Token.RefreshTTL,
		Warn: func(msg string, kv ...any) {
			e.logger.Warn().Fields(kv).Msg(msg)
		},
	})

	switch result.Failure {
	case flows.RotateFailureNone:
		// Rotation succeeded; the consumed generation's session is touched
		// below, best effort, since session and family lifecycles are
		// decoupled.
		if result.SessionID != "" {
			if err := e.touchQuiet(ctx, result.SessionID); err != nil {
				e.logger.Debug().Err(err).Str("session_id", result.SessionID).Msg("session touch after rotation failed")
			}
		}
		e.metricInc(MetricRotateSuccess)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventRotateSuccess,
			SubjectID: result.SubjectID,
			SessionID: result.SessionID,
			FamilyID:  result.FamilyID,
			TokenID:   result.ConsumedTokenID,
			Success:   true,
			Metadata:  map[string]string{"generation": fmt.Sprint(result.Generation)},
		})
		return &Credentials{
			AccessToken:     result.AccessToken,
			RefreshToken:    result.RefreshToken,
			CSRFToken:       result.CSRFToken,
			AccessExpiresAt: result.AccessExpiresAt,
			SessionID:       result.SessionID,
			FamilyID:        result.FamilyID,
		}, nil

	case flows.RotateFailureReplay:
		e.metricInc(MetricReplayDetected)
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventReplayDetected,
			SubjectID: result.SubjectID,
			FamilyID:  result.FamilyID,
			TokenID:   result.ConsumedTokenID,
			Error:     "refresh token reuse",
			Metadata:  map[string]string{"family_revoked": fmt.Sprint(result.FamilyRevoked)},
		})
		// All sessions in the family are terminated, not just this one.
		e.logger.Warn().
			Str("subject_id", result.SubjectID).
			Str("family_id", result.FamilyID).
			Bool("family_revoked", result.FamilyRevoked).
			Msg("refresh token replay detected; token family revoked")
		return nil, ErrReplayDetected

	case flows.RotateFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventRotateRateLimited,
			SubjectID: result.SubjectID,
			FamilyID:  result.FamilyID,
			Error:     "refresh rate limited",
		})
		if errors.Is(result.Err, rate.ErrRedisUnavailable) {
			return nil, ErrStoreUnavailable
		}
		return nil, ErrRefreshRateLimited

	case flows.RotateFailureStore, flows.RotateFailureNextWrite, flows.RotateFailureSubjectLookup:
		e.metricInc(MetricRotateFailure)
		if err := mapStoreErr(result.Err); errors.Is(err, ErrStoreUnavailable) {
			return nil, ErrStoreUnavailable
		}
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventRotateInvalid,
			SubjectID: result.SubjectID,
			FamilyID:  result.FamilyID,
			Error:     result.Err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, result.Err)

	case flows.RotateFailureSign, flows.RotateFailureCSRF:
		// Minting the successor failed on our side; the presented token
		// itself was good. Never surfaced as a credential rejection.
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventRotateMintFailed,
			SubjectID: result.SubjectID,
			FamilyID:  result.FamilyID,
			Error:     result.Err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, result.Err)

	default:
		// Decode, NotFound: credential-shaped failures.
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventRotateInvalid,
			SubjectID: result.SubjectID,
			FamilyID:  result.FamilyID,
			Error:     result.Err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, result.Err)
	}
}

// RevokeFamily invalidates every generation of a token family in one
// atomic unit. Used by logout and by administrative revocation.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string) error {
	if e == nil || e.tokenStore == nil {
		return ErrEngineNotReady
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return mapStoreErr(e.tokenStore.RevokeFamily(sctx, familyID))
}

// lookupSubjectClaims re-reads display claims from the identity provider
// so rotated access tokens never carry stale role state.
func (e *Engine) lookupSubjectClaims(ctx context.Context, subjectID string) (string, string, error) {
	subject, err := e.identity.GetSubjectByID(ctx, subjectID)
	if err != nil {
		return "", "", err
	}
	if subject == nil {
		return "", "", ErrSubjectNotFound
	}
	return subject.Email, string(subject.Role), nil
}
