// Package duo implements the remote push/passcode factor over the Duo Auth
// API v2. Every remote call runs under a provider deadline and any outcome
// other than an explicit "allow" is a rejection.
package duo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/internal/stores"
)

const resultAllow = "allow"

// Config bounds remote calls.
type Config struct {
	// Timeout bounds check and auth calls. Default 15s.
	Timeout time.Duration `yaml:"timeout"`
	// StatusTimeout bounds the auth_status long poll. Default 65s.
	StatusTimeout time.Duration `yaml:"status_timeout"`
	// ChallengeTTL bounds how long a push transaction can be answered.
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

type Provider struct {
	cfg        Config
	client     *Client
	challenges *stores.ChallengeStore
}

// New returns the provider. Push transaction ids are bound to the principal
// in rdb until answered.
func New(cfg Config, rdb redis.UniversalClient, hc *http.Client) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 65 * time.Second
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	prefix := ""
	if cfg.KeyPrefix != "" {
		prefix = cfg.KeyPrefix + ":d"
	}
	return &Provider{
		cfg:        cfg,
		client:     NewClient(hc),
		challenges: stores.NewChallengeStore(rdb, prefix),
	}
}

func (p *Provider) Kind() factor.Kind { return factor.KindDuo }

func (p *Provider) CanGenerate(principal *factor.Principal) bool {
	_, ok := pushPayload(principal)
	return ok
}

// Generate starts a push or phone call and returns its transaction id, or
// asks Duo to text passcodes for PurposeSMS. PurposePasscode has no
// generate phase.
func (p *Provider) Generate(ctx context.Context, purpose factor.Purpose, principal *factor.Principal) (*factor.Challenge, error) {
	pl, ok := pushPayload(principal)
	if !ok {
		return nil, factor.ErrFactorNotConfigured
	}

	switch purpose {
	case factor.PurposePasscode:
		return nil, nil
	case factor.PurposeSMS:
		params := userParams(pl, principal)
		params.Set("factor", "sms")
		params.Set("device", "auto")
		if _, err := p.auth(ctx, pl, params); err != nil {
			return nil, err
		}
		return nil, nil
	}

	params := userParams(pl, principal)
	params.Set("factor", duoFactor(purpose))
	params.Set("device", "auto")
	params.Set("async", "1")
	res, err := p.auth(ctx, pl, params)
	if err != nil {
		return nil, err
	}
	if res.TxID == "" {
		return nil, fmt.Errorf("%w: auth returned no transaction id", factor.ErrRemoteUnavailable)
	}

	err = p.challenges.Save(ctx, &stores.PendingChallenge{
		PrincipalID: principal.ID,
		Kind:        uint8(factor.KindDuo),
		Handle:      res.TxID,
	}, p.cfg.ChallengeTTL)
	if err != nil {
		return nil, err
	}
	return &factor.Challenge{Kind: factor.KindDuo, Handle: res.TxID, Host: pl.Host}, nil
}

// Validate resolves the proof. For push and phone the proof is the
// transaction id issued by Generate, which is consumed; for passcode and
// SMS it is the passcode itself.
func (p *Provider) Validate(ctx context.Context, purpose factor.Purpose, proof string, principal *factor.Principal) (bool, error) {
	pl, ok := pushPayload(principal)
	if !ok {
		return false, factor.ErrFactorNotConfigured
	}
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return false, factor.ErrFactorRejected
	}

	txid := proof
	if purpose == factor.PurposePasscode || purpose == factor.PurposeSMS {
		params := userParams(pl, principal)
		params.Set("factor", "passcode")
		params.Set("passcode", proof)
		params.Set("async", "1")
		res, err := p.auth(ctx, pl, params)
		if err != nil {
			return false, err
		}
		if res.TxID == "" {
			return false, fmt.Errorf("%w: passcode result %q", factor.ErrFactorRejected, res.Result)
		}
		txid = res.TxID
	} else {
		_, err := p.challenges.Consume(ctx, principal.ID, uint8(factor.KindDuo), txid)
		if err != nil {
			if errors.Is(err, stores.ErrBackend) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", factor.ErrChallengeNotFound, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.StatusTimeout)
	defer cancel()
	status, err := p.client.AuthStatus(callCtx, credentials(pl), txid)
	if err != nil {
		return false, classify(err)
	}
	if status.Result != resultAllow {
		return false, fmt.Errorf("%w: duo result %q (%s)", factor.ErrFactorRejected, status.Result, status.Status)
	}
	return true, nil
}

// ValidateConfiguration checks the payload shape and then proves the
// credentials against /auth/v2/check.
func (p *Provider) ValidateConfiguration(ctx context.Context, rec factor.Record) error {
	pl, ok := rec.Payload.(factor.PushPayload)
	if !ok {
		return fmt.Errorf("%w: push payload expected", factor.ErrConfigurationInvalid)
	}
	creds := credentials(pl)
	if err := CheckShape(creds); err != nil {
		return err
	}
	return p.Check(ctx, creds)
}

// Check round-trips creds against Duo.
func (p *Provider) Check(ctx context.Context, creds Credentials) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	if err := p.client.Check(callCtx, creds); err != nil {
		return fmt.Errorf("%w: %w", factor.ErrConfigurationInvalid, classify(err))
	}
	return nil
}

// CheckShape validates credentials without a remote call.
func CheckShape(creds Credentials) error {
	if creds.IntegrationKey == "" || creds.SecretKey == "" {
		return fmt.Errorf("%w: integration and secret keys are required", factor.ErrConfigurationInvalid)
	}
	if !ValidHost(creds.Host) {
		return fmt.Errorf("%w: host %q is not a Duo API host", factor.ErrConfigurationInvalid, creds.Host)
	}
	return nil
}

// ValidHost reports whether host looks like a Duo API hostname.
func ValidHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if !strings.HasPrefix(h, "api-") {
		return false
	}
	return strings.HasSuffix(h, ".duosecurity.com") || strings.HasSuffix(h, ".duofederal.com")
}

func (p *Provider) auth(ctx context.Context, pl factor.PushPayload, params url.Values) (*AuthResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	res, err := p.client.Auth(callCtx, credentials(pl), params)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func classify(err error) error {
	if errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", factor.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
}

func pushPayload(principal *factor.Principal) (factor.PushPayload, bool) {
	rec, ok := principal.EnabledRecord(factor.KindDuo)
	if !ok {
		return factor.PushPayload{}, false
	}
	pl, ok := rec.Payload.(factor.PushPayload)
	if !ok || CheckShape(credentials(pl)) != nil {
		return factor.PushPayload{}, false
	}
	return pl, true
}

func credentials(pl factor.PushPayload) Credentials {
	return Credentials{Host: pl.Host, IntegrationKey: pl.IntegrationKey, SecretKey: pl.SecretKey}
}

func userParams(pl factor.PushPayload, principal *factor.Principal) url.Values {
	params := url.Values{}
	if pl.UserID != "" {
		params.Set("user_id", pl.UserID)
	} else {
		params.Set("username", principal.Email)
	}
	return params
}

func duoFactor(purpose factor.Purpose) string {
	if purpose == factor.PurposePhone {
		return "phone"
	}
	return "push"
}
