// Package duoweb implements the legacy signed-challenge factor (Duo Web v2
// sig_request / sig_response). One implementation serves two kinds: the
// principal's own integration, bound to the principal id, and the
// organization's integration, bound to the principal's email.
package duoweb

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/factor/duo"
)

type Provider struct {
	kind factor.Kind
	akey string
	now  func() time.Time
}

// NewUser returns the principal-scoped provider (KindDuoLegacy).
func NewUser(applicationKey string) *Provider {
	return &Provider{kind: factor.KindDuoLegacy, akey: applicationKey, now: time.Now}
}

// NewOrganization returns the organization-scoped provider
// (KindOrganizationDuo).
func NewOrganization(applicationKey string) *Provider {
	return &Provider{kind: factor.KindOrganizationDuo, akey: applicationKey, now: time.Now}
}

func (p *Provider) Kind() factor.Kind { return p.kind }

func (p *Provider) CanGenerate(principal *factor.Principal) bool {
	_, _, ok := p.resolve(principal)
	return ok
}

// Generate returns the sig_request and the host the client widget talks to.
func (p *Provider) Generate(_ context.Context, _ factor.Purpose, principal *factor.Principal) (*factor.Challenge, error) {
	pl, subject, ok := p.resolve(principal)
	if !ok {
		return nil, factor.ErrFactorNotConfigured
	}
	req, err := signRequest(p.keys(pl), subject, p.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", factor.ErrConfigurationInvalid, err)
	}
	return &factor.Challenge{Kind: p.kind, SignedRequest: req, Host: pl.Host}, nil
}

// Validate verifies sig_response and requires it to name this principal's
// binding subject.
func (p *Provider) Validate(_ context.Context, _ factor.Purpose, proof string, principal *factor.Principal) (bool, error) {
	pl, subject, ok := p.resolve(principal)
	if !ok {
		return false, factor.ErrFactorNotConfigured
	}
	got, err := verifyResponse(p.keys(pl), strings.TrimSpace(proof), p.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(subject)) != 1 {
		return false, fmt.Errorf("%w: response names another subject", factor.ErrFactorRejected)
	}
	return true, nil
}

func (p *Provider) ValidateConfiguration(_ context.Context, rec factor.Record) error {
	pl, ok := rec.Payload.(factor.SignedChallengePayload)
	if !ok {
		return fmt.Errorf("%w: signed challenge payload expected", factor.ErrConfigurationInvalid)
	}
	if !duo.ValidHost(pl.Host) {
		return fmt.Errorf("%w: host %q is not a Duo API host", factor.ErrConfigurationInvalid, pl.Host)
	}
	if err := p.keys(pl).check(); err != nil {
		return fmt.Errorf("%w: %v", factor.ErrConfigurationInvalid, err)
	}
	return nil
}

func (p *Provider) keys(pl factor.SignedChallengePayload) keys {
	return keys{ikey: pl.IntegrationKey, skey: pl.SecretKey, akey: p.akey}
}

func (p *Provider) resolve(principal *factor.Principal) (factor.SignedChallengePayload, string, bool) {
	var (
		rec     factor.Record
		ok      bool
		subject string
	)
	if p.kind == factor.KindOrganizationDuo {
		rec, ok = principal.OrganizationRecord(factor.KindOrganizationDuo)
		if ok {
			subject = principal.Email
		}
	} else {
		rec, ok = principal.EnabledRecord(factor.KindDuoLegacy)
		if ok {
			subject = principal.ID
		}
	}
	if !ok || subject == "" {
		return factor.SignedChallengePayload{}, "", false
	}
	pl, ok := rec.Payload.(factor.SignedChallengePayload)
	if !ok || !duo.ValidHost(pl.Host) || p.keys(pl).check() != nil {
		return factor.SignedChallengePayload{}, "", false
	}
	return pl, subject, true
}
