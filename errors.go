package goFactor

import (
	"errors"

	"github.com/MrEthical07/goFactor/factor"
)

// Caller-visible outcomes. Every other cause is reported through audit
// events and logs only.
var (
	ErrInvalidCredential    = factor.ErrInvalidCredential
	ErrFactorNotConfigured  = factor.ErrFactorNotConfigured
	ErrFactorRejected       = factor.ErrFactorRejected
	ErrRemoteUnavailable    = factor.ErrRemoteUnavailable
	ErrConfigurationInvalid = factor.ErrConfigurationInvalid
	ErrStampMismatch        = factor.ErrStampMismatch
	ErrCounterReplay        = factor.ErrCounterReplay
)

var (
	// ErrEngineNotReady is returned when a required collaborator was not
	// configured on the Builder.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrChallengeTokenInvalid is returned by GenerateChallenge for a token
	// that is malformed, expired, not pending, or carries a stale stamp.
	ErrChallengeTokenInvalid = errors.New("challenge token invalid")
	ErrBuilderUsed           = errors.New("builder already used")
	// ErrUnauthorized is returned by Authorize for any token that does not
	// grant access, including two-factor-pending tokens.
	ErrUnauthorized = errors.New("unauthorized")
)

// GenericFailureMessage is the only text a caller should show after
// ErrInvalidCredential.
const GenericFailureMessage = "Username or password is incorrect. Try again."

// PublicMessage maps an engine error to caller-safe text. Factor rejections
// get the same text as credential failures.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrFactorRejected):
		return GenericFailureMessage
	case errors.Is(err, ErrUnauthorized):
		return "Sign in to continue."
	case errors.Is(err, ErrChallengeTokenInvalid):
		return "Your sign-in session expired. Sign in again."
	case errors.Is(err, ErrFactorNotConfigured):
		return "That verification method is not available."
	default:
		return "Sign-in is unavailable. Try again later."
	}
}
