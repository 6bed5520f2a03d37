// Package remember implements the remembered-device factor: a signed token
// scoped to one principal, one device and one security stamp, issued after a
// full sign-in and accepted in place of the second factor until it expires.
package remember

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/jwt"
)

type Provider struct {
	tokens *jwt.Manager
}

func New(tokens *jwt.Manager) *Provider {
	return &Provider{tokens: tokens}
}

func (p *Provider) Kind() factor.Kind { return factor.KindRemember }

// CanGenerate is always false: remembered devices are never offered as a
// factor choice.
func (p *Provider) CanGenerate(*factor.Principal) bool { return false }

func (p *Provider) Generate(context.Context, factor.Purpose, *factor.Principal) (*factor.Challenge, error) {
	return nil, nil
}

// Issue mints a token for the principal on deviceIdentifier.
func (p *Provider) Issue(principal *factor.Principal, deviceIdentifier string) (string, time.Time, error) {
	if principal == nil || deviceIdentifier == "" {
		return "", time.Time{}, fmt.Errorf("%w: remember token needs a principal and a device", factor.ErrFactorRejected)
	}
	return p.tokens.IssueRemember(principal.ID, principal.SecurityStamp, deviceIdentifier)
}

// Validate accepts proof only for the exact principal and the device on ctx,
// and only while the principal's security stamp is unchanged.
func (p *Provider) Validate(ctx context.Context, _ factor.Purpose, proof string, principal *factor.Principal) (bool, error) {
	device := factor.DeviceFromContext(ctx)
	if principal == nil || device == "" {
		return false, fmt.Errorf("%w: no device identifier", factor.ErrFactorRejected)
	}
	claims, err := p.tokens.ParseRemember(strings.TrimSpace(proof))
	if err != nil {
		return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
	}
	if !equal(claims.Subject, principal.ID) || !equal(claims.DeviceID, device) {
		return false, fmt.Errorf("%w: token bound to another principal or device", factor.ErrFactorRejected)
	}
	if !equal(claims.SecurityStamp, principal.SecurityStamp) {
		return false, factor.ErrStampMismatch
	}
	return true, nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
