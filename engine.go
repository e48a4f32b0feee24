package authority

import (
	"context"
	"errors"
	"time"

	"github.com/axisboard/authority/cache"
	"github.com/axisboard/authority/csrf"
	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/internal/rate"
	"github.com/axisboard/authority/store"
	"github.com/axisboard/authority/token"
	"github.com/rs/zerolog"
)

// Engine is the session/token authority facade: it issues, validates,
// rotates, and revokes the service's derived credentials and performs
// server-side privilege verification. Build one with [Builder].
type Engine struct {
	config          Config
	tokenStore      store.TokenStore
	codec           *token.Codec
	guard           *csrf.Guard
	identity        IdentityProvider
	validationCache cache.Cache
	roleCache       cache.Cache
	rateLimiter     *rate.Limiter
	audit           *internalaudit.Dispatcher
	metrics         *Metrics
	logger          zerolog.Logger

	// now is the engine clock, replaceable in tests.
	now func() time.Time
	// mintCSRF mints double-submit values, replaceable in tests.
	mintCSRF func() (string, error)
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ValidateCSRF checks the double-submit pair for a state-mutating request.
// Side-effect-free methods should be exempted with [csrf.SafeMethod] before
// calling.
func (e *Engine) ValidateCSRF(headerValue, cookieValue string) bool {
	return e.guard.Validate(headerValue, cookieValue)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, event internalaudit.Event) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.audit.Emit(ctx, event)
}

// storeCtx bounds a store round trip by the configured deadline.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// mapStoreErr folds availability failures into ErrStoreUnavailable so a
// timeout is never mistaken for a credential rejection.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, store.ErrStoreUnavailable):
		return ErrStoreUnavailable
	default:
		return err
	}
}

const (
	auditEventIssueSuccess       = "issue_success"
	auditEventIssueFailure       = "issue_failure"
	auditEventRotateSuccess      = "rotate_success"
	auditEventRotateInvalid      = "rotate_invalid"
	auditEventRotateMintFailed   = "rotate_mint_failed"
	auditEventRotateRateLimited  = "rotate_rate_limited"
	auditEventReplayDetected     = "replay_detected"
	auditEventValidateRevoked    = "validate_revoked"
	auditEventAdminCheck         = "admin_check"
	auditEventRoleMismatch       = "role_mismatch"
	auditEventSessionEvicted     = "session_evicted"
	auditEventSessionExpired     = "session_expired"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventAccessTokenRevoked = "access_token_revoked"
)
