package internaldefs

import (
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
)

// BucketCount is the number of latency buckets, including +Inf.
const BucketCount = len(goGuard.HistogramBounds) + 1

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful login attempts."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed login attempts."},
	{ID: goGuard.MetricLoginRateLimited, Name: "goguard_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goGuard.MetricRefreshSuccess, Name: "goguard_refresh_success_total", Help: "Successful refresh operations."},
	{ID: goGuard.MetricRefreshFailure, Name: "goguard_refresh_failure_total", Help: "Refresh attempts with an invalid token."},
	{ID: goGuard.MetricRefreshReuseDetected, Name: "goguard_refresh_reuse_detected_total", Help: "Refresh attempts with a superseded or logged-out token."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Logout operations."},
	{ID: goGuard.MetricAuthenticateFailure, Name: "goguard_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: goGuard.MetricAuthzAllowed, Name: "goguard_authz_allowed_total", Help: "Allowed authorization decisions."},
	{ID: goGuard.MetricAuthzDenied, Name: "goguard_authz_denied_total", Help: "Denied authorization decisions."},
	{ID: goGuard.MetricAuthzOverride, Name: "goguard_authz_override_total", Help: "Authorization decisions allowed by the override role."},
	{ID: goGuard.MetricStoreUnavailable, Name: "goguard_store_unavailable_total", Help: "Operations failed because a backend was unavailable."},
	{ID: goGuard.MetricPasswordUpgraded, Name: "goguard_password_upgraded_total", Help: "Password hashes upgraded on login."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricAuthenticateLatency, Name: "goguard_authenticate_latency_seconds", Help: "Access token authentication latency."},
}

// AuditDroppedName is the counter for events dropped by the audit
// dispatcher.
const AuditDroppedName = "goguard_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// AuditDroppedByEventName breaks [AuditDroppedName] down by event type.
const AuditDroppedByEventName = "goguard_audit_dropped_by_event_total"

// AuditDroppedByEventHelp describes [AuditDroppedByEventName].
const AuditDroppedByEventHelp = "Dropped audit events by event type."

// AuditEventLabel is the label carrying the audit event type.
const AuditEventLabel = "event_type"

// BoundSuffix returns a metric-name-safe form of bucket i's upper bound,
// e.g. "0_005" or "inf".
func BoundSuffix(i int) string {
	if i >= len(goGuard.HistogramBounds) {
		return "inf"
	}
	s := strconv.FormatFloat(goGuard.HistogramBounds[i], 'f', -1, 64)
	out := []byte(s)
	for j := range out {
		if out[j] == '.' {
			out[j] = '_'
		}
	}
	return string(out)
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
