package authority

import (
	"context"
	"fmt"

	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/internal/flows"
)

// Issue creates a fresh access/refresh pair and a new token family for a
// subject the identity provider has just authenticated. One session and
// one generation-1 refresh record are written through the token store;
// the CSRF token is minted alongside and must be delivered to the client
// over both channels of the double-submit pattern.
//
// The only failure mode is a store-write problem, surfaced as
// [ErrIssuanceFailed] and retryable by the caller.
func (e *Engine) Issue(ctx context.Context, subject Subject, client ClientInfo) (*Credentials, error) {
	if e == nil || e.tokenStore == nil {
		return nil, ErrEngineNotReady
	}
	if subject.SubjectID == "" {
		return nil, fmt.Errorf("%w: empty subject id", ErrIssuanceFailed)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	result := flows.RunIssue(sctx, flows.IssueInput{
		SubjectID: subject.SubjectID,
		Email:     subject.Email,
		Role:      string(subject.Role),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	}, flows.IssueDeps{
		Store:           e.tokenStore,
		NewID:           newID,
		Now:             e.now,
		SignAccess:      e.codec.SignAccess,
		SignRefresh:     e.codec.SignRefresh,
		MintCSRF:        e.mintCSRF,
		AccessTTL:       e.config.Token.AccessTTL,
		RefreshTTL:      e.config.Token.RefreshTTL,
		SessionLifetime: e.config.Session.AbsoluteLifetime,
		MaxSessions:     e.config.Session.MaxSessionsPerSubject,
	})

	for _, evicted := range result.EvictedSessionIDs {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventSessionEvicted,
			SubjectID: subject.SubjectID,
			SessionID: evicted,
			Success:   true,
		})
	}

	if result.Failure != flows.IssueFailureNone {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventIssueFailure,
			SubjectID: subject.SubjectID,
			IP:        client.IPAddress,
			Error:     result.Err.Error(),
		})
		e.logger.Error().Err(result.Err).Str("subject_id", subject.SubjectID).Msg("credential issuance failed")
		return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, mapStoreErr(result.Err))
	}

	e.metricInc(MetricIssueSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, internalaudit.Event{
		EventType: auditEventIssueSuccess,
		SubjectID: subject.SubjectID,
		SessionID: result.SessionID,
		FamilyID:  result.FamilyID,
		IP:        client.IPAddress,
		Success:   true,
	})

	return &Credentials{
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		CSRFToken:       result.CSRFToken,
		AccessExpiresAt: result.AccessExpiresAt,
		SessionID:       result.SessionID,
		FamilyID:        result.FamilyID,
	}, nil
}
