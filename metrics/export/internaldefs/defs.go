// Package internaldefs holds the shared metric name table consumed by the
// exporter packages. It exists so every export backend emits identical
// series names without duplicating the mapping.
package internaldefs

import (
	authcore "github.com/authcore/authcore"
)

// CounterDef maps one engine counter to its exported series name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported series name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in engine order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Created principals."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: authcore.MetricVerifySuccess, Name: "authcore_verify_success_total", Help: "Tokens that passed full verification."},
	{ID: authcore.MetricVerifyFailure, Name: "authcore_verify_failure_total", Help: "Tokens rejected on the verification path."},
	{ID: authcore.MetricVerifyRevoked, Name: "authcore_verify_revoked_total", Help: "Verification rejections due to revocation."},
	{ID: authcore.MetricRotateSuccess, Name: "authcore_rotate_success_total", Help: "Refresh rotations that won the transition."},
	{ID: authcore.MetricRotateReplayed, Name: "authcore_rotate_replayed_total", Help: "Rotation attempts on an already rotated token."},
	{ID: authcore.MetricRotateFailure, Name: "authcore_rotate_failure_total", Help: "All other rotation failures."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Sign-out-everywhere calls."},
	{ID: authcore.MetricRevocationAdded, Name: "authcore_revocation_added_total", Help: "Token IDs pushed into the revocation store."},
	{ID: authcore.MetricActionCreated, Name: "authcore_action_created_total", Help: "Minted single-use action tokens."},
	{ID: authcore.MetricActionConsumed, Name: "authcore_action_consumed_total", Help: "Successful single-use redemptions."},
	{ID: authcore.MetricActionConsumeFailure, Name: "authcore_action_consume_failure_total", Help: "Failed redemption attempts."},
	{ID: authcore.MetricRateLimited, Name: "authcore_rate_limited_total", Help: "Requests rejected by the rate window."},
	{ID: authcore.MetricQuotaExceeded, Name: "authcore_quota_exceeded_total", Help: "Metered actions rejected by the period quota."},
	{ID: authcore.MetricTokensIssued, Name: "authcore_tokens_issued_total", Help: "Signed tokens minted, both kinds."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Verification latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's fixed millisecond buckets.
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

// HistogramBoundSuffix holds the bounds in series-name-safe form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
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

// CumulativeBuckets converts per-bucket counts to cumulative counts, the
// shape histogram consumers expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
