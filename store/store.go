package store

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned when no refresh-token record exists for a token ID.
var ErrTokenNotFound = errors.New("refresh token record not found")

// ErrTokenAlreadyUsed is returned by ClaimAndAdvance when the record has
// already been consumed. The caller treats this as replay.
var ErrTokenAlreadyUsed = errors.New("refresh token already used")

// ErrFamilyRevoked is returned by SaveRefreshToken when the target family
// has been revoked. It closes the race between a winning rotation's insert
// and a concurrent family-wide revocation.
var ErrFamilyRevoked = errors.New("token family revoked")

// ErrSessionNotFound is returned when no session exists for a session ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrStoreUnavailable wraps backend availability failures. Callers must not
// interpret it as a credential rejection.
var ErrStoreUnavailable = errors.New("token store unavailable")

// RefreshTokenRecord is the durable state of one refresh-token generation.
// For a given FamilyID at most one record has a zero UsedAt at any instant.
type RefreshTokenRecord struct {
	TokenID    string
	SubjectID  string
	FamilyID   string
	Generation int
	ExpiresAt  time.Time
	UsedAt     time.Time // zero until consumed
	CreatedAt  time.Time
}

// Used reports whether the record has been consumed by a rotation.
func (r *RefreshTokenRecord) Used() bool {
	return !r.UsedAt.IsZero()
}

// Session records human continuity independent of token cryptography:
// idle and absolute timeouts, and the concurrent-session cap.
type Session struct {
	SessionID      string
	SubjectID      string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// AuditRecord is one row of the append-only admin audit log.
type AuditRecord struct {
	SubjectID string
	Action    string
	Resource  string
	Granted   bool
	Timestamp time.Time
}

// TokenStore is the single writer surface over durable state. Only the
// issuer, the rotator, and the session manager mutate it.
type TokenStore interface {
	// SaveRefreshToken persists a new, unused generation record.
	SaveRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error

	// ClaimAndAdvance atomically selects the record by tokenID where it is
	// still unused, marks it used, and returns the pre-update record. Two
	// concurrent callers racing on the same tokenID observe exactly one
	// success; the loser receives ErrTokenAlreadyUsed. Expired records
	// behave as ErrTokenNotFound.
	ClaimAndAdvance(ctx context.Context, tokenID string) (*RefreshTokenRecord, error)

	// RevokeFamily invalidates every generation sharing familyID in one
	// atomic unit, regardless of used state. Once revoked, no token of the
	// family is ever accepted again.
	RevokeFamily(ctx context.Context, familyID string) error

	// FamilyRevoked reports whether the family has been revoked.
	FamilyRevoked(ctx context.Context, familyID string) (bool, error)

	// RevokeFamiliesForSubject revokes every family that holds records for
	// subjectID. Used by subject-wide logout.
	RevokeFamiliesForSubject(ctx context.Context, subjectID string) error

	// RevokeAccessToken adds a token ID to the access revocation list until
	// the given expiry.
	RevokeAccessToken(ctx context.Context, tokenID string, until time.Time) error

	// IsAccessTokenRevoked is a point lookup against the revocation list.
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)

	SaveSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSessionActivity(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error

	// SessionsForSubject returns the subject's live sessions ordered by
	// CreatedAt ascending, oldest first.
	SessionsForSubject(ctx context.Context, subjectID string) ([]*Session, error)

	// AppendAuditRecord appends one row to the admin audit log.
	AppendAuditRecord(ctx context.Context, rec *AuditRecord) error
}
