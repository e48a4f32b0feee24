package internaldefs

import (
	authority "github.com/axisboard/authority"
)

// CounterDef binds a MetricID to its stable exposition name.
type CounterDef struct {
	ID   authority.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its stable exposition name.
type HistogramDef struct {
	ID   authority.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authority.MetricIssueSuccess, Name: "authority_issue_success_total", Help: "Successful credential issuances."},
	{ID: authority.MetricIssueFailure, Name: "authority_issue_failure_total", Help: "Failed credential issuances."},
	{ID: authority.MetricRotateSuccess, Name: "authority_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: authority.MetricRotateFailure, Name: "authority_rotate_failure_total", Help: "Rejected refresh rotations."},
	{ID: authority.MetricReplayDetected, Name: "authority_replay_detected_total", Help: "Refresh reuse presentations that revoked a token family."},
	{ID: authority.MetricRefreshRateLimited, Name: "authority_refresh_rate_limited_total", Help: "Throttled rotation attempts."},
	{ID: authority.MetricValidateSuccess, Name: "authority_validate_success_total", Help: "Accepted access tokens."},
	{ID: authority.MetricValidateFailure, Name: "authority_validate_failure_total", Help: "Rejected access tokens."},
	{ID: authority.MetricTokenRevoked, Name: "authority_token_revoked_total", Help: "Rejections caused by the access revocation list."},
	{ID: authority.MetricSessionCreated, Name: "authority_session_created_total", Help: "Sessions created at issuance."},
	{ID: authority.MetricSessionEvicted, Name: "authority_session_evicted_total", Help: "Sessions evicted by the concurrency cap."},
	{ID: authority.MetricSessionExpired, Name: "authority_session_expired_total", Help: "Sessions ended by idle or absolute timeout."},
	{ID: authority.MetricLogout, Name: "authority_logout_total", Help: "Single-session logout operations."},
	{ID: authority.MetricLogoutAll, Name: "authority_logout_all_total", Help: "Subject-wide revocation operations."},
	{ID: authority.MetricAdminGranted, Name: "authority_admin_granted_total", Help: "Privileged checks that passed."},
	{ID: authority.MetricAdminDenied, Name: "authority_admin_denied_total", Help: "Privileged checks that failed."},
	{ID: authority.MetricRoleMismatch, Name: "authority_role_mismatch_total", Help: "Token role versus durable role disagreements."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authority.MetricValidateLatency, Name: "authority_validate_latency_seconds", Help: "Access-validation latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// core latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
