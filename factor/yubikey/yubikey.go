// Package yubikey implements the remote one-time password factor against
// Yubico-compatible validation servers (protocol 2.0).
//
// A code is rejected locally, without any remote call, unless it is exactly
// 44 characters and its 12-character public identifier is enrolled for the
// principal. Only then are the validation servers consulted.
package yubikey

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/internal"
)

const (
	// OTPLength is the length of a YubiKey OTP in modhex.
	OTPLength = 44
	// IdentifierLength is the length of the public identifier prefix.
	IdentifierLength = 12

	modhex      = "cbdefghijklnrtuv"
	nonceLength = 32
)

// DefaultValidationURLs are the public YubiCloud endpoints.
var DefaultValidationURLs = []string{
	"https://api.yubico.com/wsapi/2.0/verify",
	"https://api2.yubico.com/wsapi/2.0/verify",
	"https://api3.yubico.com/wsapi/2.0/verify",
	"https://api4.yubico.com/wsapi/2.0/verify",
	"https://api5.yubico.com/wsapi/2.0/verify",
}

// Config holds the validation client credentials.
type Config struct {
	ClientID string `yaml:"client_id"`
	// Key is the base64 API secret. Empty disables request and response signing.
	Key            string        `yaml:"-"`
	ValidationURLs []string      `yaml:"validation_urls"`
	Timeout        time.Duration `yaml:"timeout"`
}

type Provider struct {
	v       *validator
	timeout time.Duration
}

// New returns the provider. It fails when the key is not valid base64.
func New(cfg Config, hc *http.Client) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: yubico client id is required", factor.ErrConfigurationInvalid)
	}
	key, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: yubico key is not base64: %v", factor.ErrConfigurationInvalid, err)
	}
	urls := cfg.ValidationURLs
	if len(urls) == 0 {
		urls = DefaultValidationURLs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{
		v: &validator{
			http:     hc,
			clientID: cfg.ClientID,
			key:      key,
			urls:     append([]string(nil), urls...),
		},
		timeout: cfg.Timeout,
	}, nil
}

func (p *Provider) Kind() factor.Kind { return factor.KindYubiKey }

func (p *Provider) CanGenerate(principal *factor.Principal) bool {
	set, ok := identifiers(principal)
	return ok && len(set.IDs) > 0
}

// Generate has no challenge to issue. It only tells the client whether an
// NFC key is enrolled.
func (p *Provider) Generate(_ context.Context, _ factor.Purpose, principal *factor.Principal) (*factor.Challenge, error) {
	set, ok := identifiers(principal)
	if !ok {
		return nil, factor.ErrFactorNotConfigured
	}
	return &factor.Challenge{Kind: factor.KindYubiKey, NFC: set.NFC}, nil
}

func (p *Provider) Validate(ctx context.Context, _ factor.Purpose, proof string, principal *factor.Principal) (bool, error) {
	set, ok := identifiers(principal)
	if !ok {
		return false, factor.ErrFactorNotConfigured
	}

	otp := strings.TrimSpace(proof)
	if len(otp) != OTPLength {
		return false, fmt.Errorf("%w: otp length", factor.ErrFactorRejected)
	}
	if !enrolled(set.IDs, otp[:IdentifierLength]) {
		return false, fmt.Errorf("%w: identifier not enrolled", factor.ErrFactorRejected)
	}

	nonce, err := internal.NewNonce(nonceLength)
	if err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	status, err := p.v.verify(callCtx, otp, nonce)
	if err != nil {
		if errors.Is(err, ErrResponseSignature) || errors.Is(err, ErrResponseMismatch) {
			return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
		}
		return false, fmt.Errorf("%w: %v", factor.ErrRemoteUnavailable, err)
	}
	if status != StatusOK {
		return false, fmt.Errorf("%w: validation status %s", factor.ErrFactorRejected, status)
	}
	return true, nil
}

// ValidateConfiguration checks that every enrolled identifier is 12 modhex
// characters.
func (p *Provider) ValidateConfiguration(_ context.Context, rec factor.Record) error {
	set, ok := rec.Payload.(factor.OTPIdentifierSet)
	if !ok {
		return fmt.Errorf("%w: otp identifier set expected", factor.ErrConfigurationInvalid)
	}
	if len(set.IDs) == 0 {
		return fmt.Errorf("%w: no identifiers enrolled", factor.ErrConfigurationInvalid)
	}
	for _, id := range set.IDs {
		if len(id) != IdentifierLength || !isModhex(id) {
			return fmt.Errorf("%w: identifier %q is not %d modhex characters", factor.ErrConfigurationInvalid, id, IdentifierLength)
		}
	}
	return nil
}

// enrolled compares prefix against every id without stopping early, so the
// time taken does not reveal which or how many ids were checked.
func enrolled(ids []string, prefix string) bool {
	found := 0
	for _, id := range ids {
		if len(id) != IdentifierLength {
			continue
		}
		found |= subtle.ConstantTimeCompare([]byte(id), []byte(prefix))
	}
	return found == 1
}

func identifiers(principal *factor.Principal) (factor.OTPIdentifierSet, bool) {
	rec, ok := principal.EnabledRecord(factor.KindYubiKey)
	if !ok {
		return factor.OTPIdentifierSet{}, false
	}
	set, ok := rec.Payload.(factor.OTPIdentifierSet)
	return set, ok
}

func isModhex(s string) bool {
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(modhex, rune(s[i])) {
			return false
		}
	}
	return true
}
