package authority

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/axisboard/authority/internal/audit"
)

// Role is the privilege level recorded against a subject in the durable
// identity store.
type Role string

const (
	// RoleUser is the default, unprivileged role.
	RoleUser Role = "user"
	// RoleAdmin grants access to privileged operations.
	RoleAdmin Role = "admin"
)

// Subject is the identity-store view of an authenticated principal. The
// identity provider owns credentials; the authority only reads the subject
// ID, the display claims, and the durable role.
type Subject struct {
	SubjectID string
	Email     string
	Role      Role
}

// IdentityProvider is the opaque identity store the authority sits in
// front of. Primary authentication happens outside this module; the
// provider is consulted here only to re-derive durable roles.
type IdentityProvider interface {
	GetSubjectByID(ctx context.Context, subjectID string) (*Subject, error)
}

// Credentials is the triple returned by issuance and rotation. The caller
// must replace any previously held refresh token with the new one.
type Credentials struct {
	AccessToken     string
	RefreshToken    string
	CSRFToken       string
	AccessExpiresAt time.Time
	SessionID       string
	FamilyID        string
}

// AuthResult is returned by [Engine.Validate]. It carries the decoded,
// verified claims of an accepted access token.
type AuthResult struct {
	SubjectID string
	Email     string
	Role      Role
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

// ClientInfo describes the requesting client at login, recorded on the
// session for audit and concurrency accounting.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
