package authority

import "errors"

var (
	// ErrSignatureInvalid is returned when a presented token fails signature verification.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired is returned when a presented token is past its expiry bound.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotYetValid is returned when a presented token is before its not-before bound.
	ErrTokenNotYetValid = errors.New("token not yet valid")
	// ErrWrongIssuer is returned when a token's issuer does not match the expected constant.
	ErrWrongIssuer = errors.New("token issuer mismatch")
	// ErrWrongAudience is returned when a token's audience does not match the expected constant.
	ErrWrongAudience = errors.New("token audience mismatch")
	// ErrTokenRevoked is returned when an access token's ID appears on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshInvalid is returned when a refresh token fails decode, signature,
	// expiry, or record lookup. It carries no store-side replay signal.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrReplayDetected is returned when an already-consumed refresh token is
	// presented again. The whole family is revoked before this is returned.
	ErrReplayDetected = errors.New("refresh token replay detected")
	// ErrRefreshRateLimited is returned when rotation attempts for a family
	// exceed the configured throttle.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrIssuanceFailed is returned when the store write backing a new token
	// family fails. Retryable.
	ErrIssuanceFailed = errors.New("credential issuance failed")
	// ErrStoreUnavailable is returned when the token store cannot be reached
	// within the configured deadline. Retryable; never a credential rejection.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrSessionExpired is returned when a session fails its idle or absolute
	// timeout check. The caller treats this as a logout.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionNotFound is returned when no session exists for the given ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRoleMismatch is returned when the durable role and the token-embedded
	// role disagree. Logged as a security event; surfaced to callers as an
	// authorization failure.
	ErrRoleMismatch = errors.New("role mismatch between token and durable store")
	// ErrInsufficientPrivilege is returned when the durably stored role does
	// not meet the required privilege level.
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	// ErrSubjectNotFound is returned when the identity provider has no record
	// for a subject ID.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrEngineNotReady is returned when an Engine method is called on an
	// incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
