package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/zuauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   zuauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   zuauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: zuauth.MetricNonceIssued, Name: "zuauth_nonce_issued_total", Help: "Login challenges issued."},
	{ID: zuauth.MetricAuthSuccess, Name: "zuauth_auth_success_total", Help: "Accepted ticket proofs."},
	{ID: zuauth.MetricAuthMissingPayload, Name: "zuauth_auth_missing_payload_total", Help: "Authenticate requests without a proof."},
	{ID: zuauth.MetricAuthInvalidProof, Name: "zuauth_auth_invalid_proof_total", Help: "Proofs that failed to decode or verify."},
	{ID: zuauth.MetricAuthUntrustedSigner, Name: "zuauth_auth_untrusted_signer_total", Help: "Proofs signed by an unexpected issuer key."},
	{ID: zuauth.MetricAuthNonceMismatch, Name: "zuauth_auth_nonce_mismatch_total", Help: "Proofs whose watermark did not match the session challenge."},
	{ID: zuauth.MetricAuthMissingNullifier, Name: "zuauth_auth_missing_nullifier_total", Help: "Proofs without a nullifier hash."},
	{ID: zuauth.MetricReplayDetected, Name: "zuauth_replay_detected_total", Help: "Proofs rejected because their nullifier was already used."},
	{ID: zuauth.MetricAuthUnsupportedEvent, Name: "zuauth_auth_unsupported_event_total", Help: "Proofs for events outside the allowlist."},
	{ID: zuauth.MetricAuthInternalError, Name: "zuauth_auth_internal_error_total", Help: "Authenticate requests that failed on a backend error."},
	{ID: zuauth.MetricNullifierReleased, Name: "zuauth_nullifier_released_total", Help: "Nullifier claims rolled back after a session write failure."},
	{ID: zuauth.MetricRateLimitHit, Name: "zuauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: zuauth.MetricLogout, Name: "zuauth_logout_total", Help: "Destroyed sessions."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: zuauth.MetricVerifyLatency, Name: "zuauth_verify_latency_seconds", Help: "Proof verification latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
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

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

const (
	AuditDroppedName = "zuauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

	PostureName = "zuauth_posture_info"
	PostureHelp = "Effective security posture. Always 1; settings are carried as labels."

	LintWarningsName = "zuauth_config_lint_warnings"
	LintWarningsHelp = "Configuration lint findings for the running engine."
)

// Label is one name/value pair on the posture series.
type Label struct {
	Name  string
	Value string
}

// PostureLabels flattens a security report into stable, sorted labels.
func PostureLabels(r zuauth.SecurityReport) []Label {
	return []Label{
		{Name: "audit", Value: strconv.FormatBool(r.AuditEnabled)},
		{Name: "disclosure", Value: r.Disclosure},
		{Name: "production", Value: strconv.FormatBool(r.ProductionMode)},
		{Name: "rate_limiting", Value: strconv.FormatBool(r.RateLimitingActive)},
		{Name: "replay_backend", Value: r.ReplayBackend},
		{Name: "replay_permanent", Value: strconv.FormatBool(r.ReplayPermanent)},
		{Name: "session_mode", Value: r.SessionMode},
		{Name: "trusted_signer", Value: strconv.FormatBool(r.TrustedSignerEnabled)},
	}
}
