package security

import "time"

// Report is a point-in-time summary of which protections an engine
// configuration has active. It contains no secrets and is safe to log.
type Report struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Leeway                 time.Duration
	RotationEnabled        bool
	ReplayDetectionEnabled bool
	SessionCapsActive      bool
	IdleTimeout            time.Duration
	AbsoluteLifetime       time.Duration
	RefreshThrottleActive  bool
	CacheActive            bool
	AuditActive            bool
	MetricsActive          bool
	Warnings               []string
}

// ReportInput carries the configuration facts the report derives from.
type ReportInput struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Leeway                time.Duration
	MaxSessionsPerSubject int
	IdleTimeout           time.Duration
	AbsoluteLifetime      time.Duration
	RefreshThrottle       bool
	CacheEnabled          bool
	AuditEnabled          bool
	MetricsEnabled        bool
}

// BuildReport derives the protection summary and flags configurations that
// weaken the token surface.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm: input.SigningAlgorithm,
		AccessTTL:        input.AccessTTL,
		RefreshTTL:       input.RefreshTTL,
		Leeway:           input.Leeway,
		// Rotation and reuse detection are structural, not optional.
		RotationEnabled:        true,
		ReplayDetectionEnabled: true,
		SessionCapsActive:      input.MaxSessionsPerSubject > 0,
		IdleTimeout:            input.IdleTimeout,
		AbsoluteLifetime:       input.AbsoluteLifetime,
		RefreshThrottleActive:  input.RefreshThrottle,
		CacheActive:            input.CacheEnabled,
		AuditActive:            input.AuditEnabled,
		MetricsActive:          input.MetricsEnabled,
	}

	if input.AccessTTL > time.Hour {
		r.Warnings = append(r.Warnings, "access TTL exceeds one hour; revocation lag grows with it")
	}
	if input.Leeway > 2*time.Minute {
		r.Warnings = append(r.Warnings, "clock leeway exceeds two minutes")
	}
	if input.MaxSessionsPerSubject <= 0 {
		r.Warnings = append(r.Warnings, "per-subject session cap disabled")
	}
	if !input.RefreshThrottle {
		r.Warnings = append(r.Warnings, "refresh throttle disabled; rotation endpoint is unthrottled")
	}

	return r
}
