package flows

import (
	"context"
	"errors"
	"time"

	"github.com/axisboard/authority/store"
	"github.com/axisboard/authority/token"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureRateLimited
	RotateFailureNotFound
	RotateFailureReplay
	RotateFailureStore
	RotateFailureSubjectLookup
	RotateFailureSign
	RotateFailureCSRF
	RotateFailureNextWrite
)

// RotateResult carries either the next-generation triple or failure metadata.
type RotateResult struct {
	Failure RotateFailureKind
	Err     error

	SubjectID  string
	FamilyID   string
	SessionID  string
	Generation int

	// ConsumedTokenID is the jti of the record claimed by this rotation,
	// set once the presented token decoded cleanly.
	ConsumedTokenID string

	NextTokenID     string
	AccessTokenID   string
	AccessToken     string
	RefreshToken    string
	CSRFToken       string
	AccessExpiresAt time.Time

	// FamilyRevoked is set when this call terminated the family after
	// observing reuse.
	FamilyRevoked bool
}

// RotateRateLimiter gates rotation attempts per family.
type RotateRateLimiter interface {
	CheckRefresh(ctx context.Context, familyID string) error
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	Store        store.TokenStore
	RateLimiter  RotateRateLimiter
	ParseRefresh func(string) (*token.RefreshClaims, error)
	// LookupSubject re-reads display claims from the identity provider so a
	// rotated access token carries fresh, not cached, claims.
	LookupSubject func(ctx context.Context, subjectID string) (email, role string, err error)
	NewID         func() string
	Now           func() time.Time
	SignAccess    func(tokenID, subjectID, email, role, sessionID string, now time.Time) (string, error)
	SignRefresh   func(tokenID, subjectID, familyID, sessionID string, generation int, now time.Time) (string, error)
	MintCSRF      func() (string, error)

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Warn       func(string, ...any)
}

// RunRotate consumes a refresh token and issues the next generation of its
// family. Presenting an already-used token revokes the entire family: the
// design cannot distinguish a benign duplicate request from a stolen copy
// and chooses the conservative response, trading a rare false-positive
// logout for zero false-negative replay acceptance.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		// Signature or expiry failure: reject without touching the store.
		return RotateResult{Failure: RotateFailureDecode, Err: err}
	}

	result := RotateResult{
		SubjectID:       claims.Subject,
		FamilyID:        claims.FamilyID,
		SessionID:       claims.SessionID,
		ConsumedTokenID: claims.ID,
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, claims.FamilyID); err != nil {
			result.Failure = RotateFailureRateLimited
			result.Err = err
			return result
		}
	}

	rec, err := deps.Store.ClaimAndAdvance(ctx, claims.ID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTokenAlreadyUsed):
			// Reuse detected. Terminate the whole chain in one atomic unit.
			result.Failure = RotateFailureReplay
			result.Err = err
			if revokeErr := deps.Store.RevokeFamily(ctx, claims.FamilyID); revokeErr != nil {
				if deps.Warn != nil {
					deps.Warn("family revocation after replay failed", "family_id", claims.FamilyID)
				}
			} else {
				result.FamilyRevoked = true
			}
			return result
		case errors.Is(err, store.ErrTokenNotFound):
			result.Failure = RotateFailureNotFound
			result.Err = err
			return result
		default:
			result.Failure = RotateFailureStore
			result.Err = err
			return result
		}
	}

	// The claimed record is authoritative; the claims must agree with it or
	// the token was minted against stale or forged state.
	if rec.FamilyID != claims.FamilyID || rec.SubjectID != claims.Subject || rec.Generation != claims.Generation {
		result.Failure = RotateFailureNotFound
		result.Err = errors.New("refresh claims disagree with durable record")
		return result
	}

	email, role, err := deps.LookupSubject(ctx, rec.SubjectID)
	if err != nil {
		result.Failure = RotateFailureSubjectLookup
		result.Err = err
		return result
	}

	now := deps.Now()
	result.Generation = rec.Generation + 1
	result.NextTokenID = deps.NewID()
	result.AccessTokenID = deps.NewID()

	access, err := deps.SignAccess(result.AccessTokenID, rec.SubjectID, email, role, claims.SessionID, now)
	if err != nil {
		result.Failure = RotateFailureSign
		result.Err = err
		return result
	}
	refresh, err := deps.SignRefresh(result.NextTokenID, rec.SubjectID, rec.FamilyID, claims.SessionID, result.Generation, now)
	if err != nil {
		result.Failure = RotateFailureSign
		result.Err = err
		return result
	}
	csrfToken, err := deps.MintCSRF()
	if err != nil {
		result.Failure = RotateFailureCSRF
		result.Err = err
		return result
	}

	next := &store.RefreshTokenRecord{
		TokenID:    result.NextTokenID,
		SubjectID:  rec.SubjectID,
		FamilyID:   rec.FamilyID,
		Generation: result.Generation,
		ExpiresAt:  now.Add(deps.RefreshTTL),
		CreatedAt:  now,
	}
	if err := deps.Store.SaveRefreshToken(ctx, next); err != nil {
		if errors.Is(err, store.ErrFamilyRevoked) {
			// A concurrent replay detection revoked the family between our
			// claim and this insert. The chain is dead; report replay.
			result.Failure = RotateFailureReplay
			result.Err = err
			result.FamilyRevoked = true
			return result
		}
		result.Failure = RotateFailureNextWrite
		result.Err = err
		return result
	}

	result.AccessToken = access
	result.RefreshToken = refresh
	result.CSRFToken = csrfToken
	result.AccessExpiresAt = now.Add(deps.AccessTTL)
	return result
}
