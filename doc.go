// Package authority is a session and token authority: it issues JWT access
// tokens paired with rotating refresh tokens, detects refresh-token replay
// through single-use family chains, guards browser flows with double-submit
// CSRF tokens, and enforces session idle and absolute timeouts independent
// of token cryptography.
//
// The package sits in front of an opaque identity store. Primary
// authentication (passwords, SSO, MFA) happens elsewhere; callers hand the
// engine an authenticated [Subject] and receive a [Credentials] set. The
// engine consults the [IdentityProvider] again only to re-derive durable
// roles for privileged checks.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authority is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (Credentials, AuthResult, MetricsSnapshot,
// SessionInfo). Flow orchestration, audit dispatch, and the refresh
// throttle live under internal/ and are never exported. Durable state is
// reached only through [store.TokenStore]; Redis and Postgres
// implementations live under store/.
//
// # What this package must NOT do
//
//   - Store or verify primary credentials.
//   - Expose Redis clients, SQL handles, or store encodings in its public API.
//   - Reveal to an external caller whether a rejected token was expired,
//     revoked, or forged beyond the documented sentinel errors.
package authority
