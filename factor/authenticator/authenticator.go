// Package authenticator implements the time-based one-time code factor
// (RFC 6238, SHA1, 6 digits, 30 second steps) over a fixed ±1 step window.
package authenticator

import (
	"context"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/goFactor/factor"
)

const (
	// Period is the time-step length.
	Period = 30 * time.Second
	// Digits is the code length.
	Digits = 6
	// window is the number of steps accepted either side of now. It is not
	// configurable.
	window = 1

	minSecretBytes = 10
)

var opts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// StepMarker records spent time steps. MarkUsed returns false when the step
// was already used by the principal.
type StepMarker interface {
	MarkUsed(ctx context.Context, principalID string, step int64, ttl time.Duration) (bool, error)
}

type Provider struct {
	used StepMarker
	now  func() time.Time
}

// New returns the provider. A nil marker disables replay protection, so a
// code stays valid for its whole window.
func New(used StepMarker) *Provider {
	return &Provider{used: used, now: time.Now}
}

func (p *Provider) Kind() factor.Kind { return factor.KindAuthenticator }

func (p *Provider) CanGenerate(principal *factor.Principal) bool {
	_, ok := payload(principal)
	return ok
}

// Generate has nothing to produce: the secret is shared at enrollment.
func (p *Provider) Generate(context.Context, factor.Purpose, *factor.Principal) (*factor.Challenge, error) {
	return nil, nil
}

func (p *Provider) Validate(ctx context.Context, _ factor.Purpose, proof string, principal *factor.Principal) (bool, error) {
	pl, ok := payload(principal)
	if !ok {
		return false, factor.ErrFactorNotConfigured
	}

	code := strings.TrimSpace(proof)
	if len(code) != Digits || !isNumeric(code) {
		return false, factor.ErrFactorRejected
	}

	now := p.now()
	matched := int64(-1)
	for offset := -window; offset <= window; offset++ {
		at := now.Add(time.Duration(offset) * Period)
		expected, err := totp.GenerateCodeCustom(pl.Secret, at, opts)
		if err != nil {
			return false, fmt.Errorf("%w: %v", factor.ErrConfigurationInvalid, err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && matched < 0 {
			matched = at.Unix() / int64(opts.Period)
		}
	}
	if matched < 0 {
		return false, factor.ErrFactorRejected
	}

	if p.used != nil {
		fresh, err := p.used.MarkUsed(ctx, principal.ID, matched, time.Duration(2*window+1)*Period)
		if err != nil {
			return false, err
		}
		if !fresh {
			return false, fmt.Errorf("%w: time step already used", factor.ErrFactorRejected)
		}
	}
	return true, nil
}

// ValidateConfiguration checks that the secret is base32 and long enough.
func (p *Provider) ValidateConfiguration(_ context.Context, rec factor.Record) error {
	pl, ok := rec.Payload.(factor.AuthenticatorPayload)
	if !ok {
		return fmt.Errorf("%w: authenticator payload expected", factor.ErrConfigurationInvalid)
	}
	raw, err := DecodeSecret(pl.Secret)
	if err != nil {
		return fmt.Errorf("%w: secret is not base32: %v", factor.ErrConfigurationInvalid, err)
	}
	if len(raw) < minSecretBytes {
		return fmt.Errorf("%w: secret shorter than %d bytes", factor.ErrConfigurationInvalid, minSecretBytes)
	}
	return nil
}

// Code returns the code for t. It backs the operator CLI.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, opts)
}

// DecodeSecret decodes an unpadded or padded base32 secret, any case.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
}

func payload(principal *factor.Principal) (factor.AuthenticatorPayload, bool) {
	rec, ok := principal.EnabledRecord(factor.KindAuthenticator)
	if !ok {
		return factor.AuthenticatorPayload{}, false
	}
	pl, ok := rec.Payload.(factor.AuthenticatorPayload)
	if !ok || strings.TrimSpace(pl.Secret) == "" {
		return factor.AuthenticatorPayload{}, false
	}
	return pl, true
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
