package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/token"
)

// Validate verifies an access token for a protected request. Checks run
// in order: signature, time bounds, issuer, audience, then a revocation
// point lookup — the only store access on this path. On success the
// decoded claims are returned.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.tokenStore == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	result, err := e.validate(ctx, accessToken)
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	e.metricInc(MetricValidateSuccess)
	return result, nil
}

func (e *Engine) validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.codec.ParseAccess(accessToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, token.ErrNotYetValid):
			return nil, ErrTokenNotYetValid
		default:
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
	}

	if claims.Issuer != e.codec.Issuer() {
		return nil, ErrWrongIssuer
	}
	if !containsAudience(claims.Audience, e.codec.Audience()) {
		return nil, ErrWrongAudience
	}

	revoked, err := e.accessTokenRevoked(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, err
	}
	if revoked {
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, internalaudit.Event{
			EventType: auditEventValidateRevoked,
			SubjectID: claims.Subject,
			TokenID:   claims.ID,
			Error:     "token on revocation list",
		})
		return nil, ErrTokenRevoked
	}

	return &AuthResult{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      Role(claims.Role),
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RevokeAccessToken places a token ID on the revocation list until the
// token's own expiry. Used on manual session termination and detected
// compromise.
func (e *Engine) RevokeAccessToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if e == nil || e.tokenStore == nil {
		return ErrEngineNotReady
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.tokenStore.RevokeAccessToken(sctx, tokenID, expiresAt); err != nil {
		return mapStoreErr(err)
	}
	e.validationCache.Delete(revocationCacheKey(tokenID))
	e.emitAudit(ctx, internalaudit.Event{
		EventType: auditEventAccessTokenRevoked,
		TokenID:   tokenID,
		Success:   true,
	})
	return nil
}

// accessTokenRevoked consults the revocation list through the validation
// cache. Only a negative result is cached; a hit on the list must always
// take effect immediately.
func (e *Engine) accessTokenRevoked(ctx context.Context, tokenID string, tokenExpiry time.Time) (bool, error) {
	now := e.now()
	key := revocationCacheKey(tokenID)
	if _, ok := e.validationCache.Get(key, now); ok {
		return false, nil
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	revoked, err := e.tokenStore.IsAccessTokenRevoked(sctx, tokenID)
	if err != nil {
		return false, mapStoreErr(err)
	}
	if !revoked {
		e.validationCache.Set(key, true, cacheDeadline(now, e.config.Cache.ValidationTTL, tokenExpiry))
	}
	return revoked, nil
}

func revocationCacheKey(tokenID string) string {
	return "rv:" + tokenID
}

// cacheDeadline caps a cache entry's lifetime by the cached fact's own
// expiry, never later.
func cacheDeadline(now time.Time, ttl time.Duration, factExpiry time.Time) time.Time {
	deadline := now.Add(ttl)
	if !factExpiry.IsZero() && factExpiry.Before(deadline) {
		return factExpiry
	}
	return deadline
}

func containsAudience(aud []string, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}
