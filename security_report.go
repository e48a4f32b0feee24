package authority

import (
	"github.com/axisboard/authority/internal/security"
)

// SecurityReport summarizes which protections the engine configuration has
// active, with warnings for settings that weaken the token surface. Safe
// to log; contains no key material.
type SecurityReport = security.Report

// SecurityReport returns the protection summary for this engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	method := e.config.Token.SigningMethod
	if method == "" {
		method = "ed25519"
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:      method,
		AccessTTL:             e.config.Token.AccessTTL,
		RefreshTTL:            e.config.Token.RefreshTTL,
		Leeway:                e.config.Token.Leeway,
		MaxSessionsPerSubject: e.config.Session.MaxSessionsPerSubject,
		IdleTimeout:           e.config.Session.IdleTimeout,
		AbsoluteLifetime:      e.config.Session.AbsoluteLifetime,
		RefreshThrottle:       e.config.Security.EnableRefreshThrottle,
		CacheEnabled:          e.config.Cache.Enabled,
		AuditEnabled:          e.config.Audit.Enabled,
		MetricsEnabled:        e.config.Metrics.Enabled,
	})
}
