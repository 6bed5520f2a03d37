package internaldefs

import (
	goFactor "github.com/MrEthical07/goFactor"
)

type CounterDef struct {
	ID   goFactor.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goFactor.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Names are shared by all exporters.
var CounterDefs = []CounterDef{
	{ID: goFactor.MetricSignInSuccess, Name: "gofactor_signin_success_total", Help: "Completed sign-ins, primary or two-factor."},
	{ID: goFactor.MetricSignInFailure, Name: "gofactor_signin_failure_total", Help: "Sign-ins rejected at the password phase."},
	{ID: goFactor.MetricTwoFactorRequired, Name: "gofactor_two_factor_required_total", Help: "Sign-ins that issued a two-factor-pending token."},
	{ID: goFactor.MetricFactorSuccess, Name: "gofactor_factor_success_total", Help: "Accepted second-factor proofs."},
	{ID: goFactor.MetricFactorFailure, Name: "gofactor_factor_failure_total", Help: "Rejected second-factor proofs."},
	{ID: goFactor.MetricRemoteUnavailable, Name: "gofactor_remote_unavailable_total", Help: "Duo or Yubico calls that failed in transport."},
	{ID: goFactor.MetricStampMismatch, Name: "gofactor_stamp_mismatch_total", Help: "Tokens refused because the security stamp changed."},
	{ID: goFactor.MetricCounterReplay, Name: "gofactor_counter_replay_total", Help: "Public-key assertions whose signature counter did not advance."},
	{ID: goFactor.MetricRememberIssued, Name: "gofactor_remember_issued_total", Help: "Remembered-device tokens issued."},
	{ID: goFactor.MetricRememberUsed, Name: "gofactor_remember_used_total", Help: "Sign-ins completed with a remembered-device token."},
	{ID: goFactor.MetricDeviceCreated, Name: "gofactor_device_created_total", Help: "Device records created after a complete sign-in."},
	{ID: goFactor.MetricChallengeIssued, Name: "gofactor_challenge_issued_total", Help: "Factor challenges generated."},
}

var HistogramDefs = []HistogramDef{
	{ID: goFactor.MetricSignInLatency, Name: "gofactor_signin_latency_seconds", Help: "SignIn and VerifyFactor latency, failure delay included."},
}

// HistogramBounds are the upper bounds in seconds of every finite bucket.
// The last engine bucket is +Inf and has no entry.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the le label values of every bucket, +Inf
// included, for exporters without a native histogram type.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "gofactor_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

func NormalizeBuckets(raw []uint64) [goFactor.HistogramBucketCount]uint64 {
	var out [goFactor.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [goFactor.HistogramBucketCount]uint64) [goFactor.HistogramBucketCount]uint64 {
	var out [goFactor.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
