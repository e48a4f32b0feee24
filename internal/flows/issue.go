package flows

import (
	"context"
	"time"

	"github.com/axisboard/authority/store"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSign
	IssueFailureCSRF
	IssueFailureSessionWrite
	IssueFailureTokenWrite
)

// IssueInput carries the authenticated subject handed over by the
// identity provider after primary authentication.
type IssueInput struct {
	SubjectID string
	Email     string
	Role      string
	IPAddress string
	UserAgent string
}

// IssueResult carries the issued triple or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error

	SubjectID       string
	SessionID       string
	FamilyID        string
	AccessTokenID   string
	RefreshTokenID  string
	AccessToken     string
	RefreshToken    string
	CSRFToken       string
	AccessExpiresAt time.Time

	// EvictedSessionIDs lists sessions terminated by the concurrency cap
	// before this session was created, oldest first.
	EvictedSessionIDs []string
}

// IssueDeps captures issuance flow dependencies.
type IssueDeps struct {
	Store       store.TokenStore
	NewID       func() string
	Now         func() time.Time
	SignAccess  func(tokenID, subjectID, email, role, sessionID string, now time.Time) (string, error)
	SignRefresh func(tokenID, subjectID, familyID, sessionID string, generation int, now time.Time) (string, error)
	MintCSRF    func() (string, error)

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	SessionLifetime time.Duration
	MaxSessions     int
}

// RunIssue creates a fresh token family: one session, one generation-1
// refresh record, and the access/refresh/CSRF triple. Store-write failures
// surface with the store error preserved for root-level wrapping.
func RunIssue(ctx context.Context, in IssueInput, deps IssueDeps) IssueResult {
	now := deps.Now()

	result := IssueResult{
		SubjectID:      in.SubjectID,
		SessionID:      deps.NewID(),
		FamilyID:       deps.NewID(),
		AccessTokenID:  deps.NewID(),
		RefreshTokenID: deps.NewID(),
	}

	access, err := deps.SignAccess(result.AccessTokenID, in.SubjectID, in.Email, in.Role, result.SessionID, now)
	if err != nil {
		result.Failure = IssueFailureSign
		result.Err = err
		return result
	}
	refresh, err := deps.SignRefresh(result.RefreshTokenID, in.SubjectID, result.FamilyID, result.SessionID, 1, now)
	if err != nil {
		result.Failure = IssueFailureSign
		result.Err = err
		return result
	}
	csrfToken, err := deps.MintCSRF()
	if err != nil {
		result.Failure = IssueFailureCSRF
		result.Err = err
		return result
	}

	evicted, err := evictOverCap(ctx, deps.Store, in.SubjectID, deps.MaxSessions)
	if err != nil {
		result.Failure = IssueFailureSessionWrite
		result.Err = err
		return result
	}
	result.EvictedSessionIDs = evicted

	sess := &store.Session{
		SessionID:      result.SessionID,
		SubjectID:      in.SubjectID,
		IPAddress:      in.IPAddress,
		UserAgent:      in.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(deps.SessionLifetime),
	}
	if err := deps.Store.SaveSession(ctx, sess); err != nil {
		result.Failure = IssueFailureSessionWrite
		result.Err = err
		return result
	}

	rec := &store.RefreshTokenRecord{
		TokenID:    result.RefreshTokenID,
		SubjectID:  in.SubjectID,
		FamilyID:   result.FamilyID,
		Generation: 1,
		ExpiresAt:  now.Add(deps.RefreshTTL),
		CreatedAt:  now,
	}
	if err := deps.Store.SaveRefreshToken(ctx, rec); err != nil {
		result.Failure = IssueFailureTokenWrite
		result.Err = err
		return result
	}

	result.AccessToken = access
	result.RefreshToken = refresh
	result.CSRFToken = csrfToken
	result.AccessExpiresAt = now.Add(deps.AccessTTL)
	return result
}

// evictOverCap terminates the subject's oldest sessions until one slot is
// free under maxSessions. Least-recently-created eviction, deliberately
// not least-recently-used, so the rule stays auditable.
func evictOverCap(ctx context.Context, s store.TokenStore, subjectID string, maxSessions int) ([]string, error) {
	if maxSessions <= 0 {
		return nil, nil
	}

	sessions, err := s.SessionsForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(sessions) < maxSessions {
		return nil, nil
	}

	excess := len(sessions) - maxSessions + 1
	evicted := make([]string, 0, excess)
	for _, sess := range sessions[:excess] {
		if err := s.DeleteSession(ctx, sess.SessionID); err != nil {
			return evicted, err
		}
		evicted = append(evicted, sess.SessionID)
	}
	return evicted, nil
}
