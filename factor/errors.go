package factor

import "errors"

var (
	// ErrInvalidCredential is returned for a password mismatch or an unknown principal.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrFactorNotConfigured is returned when a kind cannot be offered to the principal.
	ErrFactorNotConfigured = errors.New("factor not configured")
	// ErrFactorRejected is returned when a proof does not verify.
	ErrFactorRejected = errors.New("factor rejected")
	// ErrRemoteUnavailable marks a transport failure to a remote verification service.
	ErrRemoteUnavailable = errors.New("remote verification service unavailable")
	// ErrConfigurationInvalid marks a malformed or incomplete factor payload.
	ErrConfigurationInvalid = errors.New("factor configuration invalid")
	// ErrStampMismatch marks a token whose embedded security stamp is stale.
	ErrStampMismatch = errors.New("security stamp mismatch")
	// ErrCounterReplay marks a public-key assertion whose counter did not advance.
	ErrCounterReplay = errors.New("signature counter did not advance")
	// ErrChallengeNotFound marks a missing, expired or already consumed pending challenge.
	ErrChallengeNotFound = errors.New("pending challenge not found")
)
