package webauthn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/internal"
	"github.com/MrEthical07/goFactor/internal/stores"
)

const (
	credentialType     = "public-key"
	clientDataTypeGet  = "webauthn.get"
	defaultTimeout     = 60 * time.Second
	defaultUserVerify  = "discouraged"
	pendingDataVersion = 1
)

// Config binds assertions to one relying party.
type Config struct {
	// RPID is the relying-party id, normally the site's registrable domain.
	RPID string `yaml:"rp_id"`
	// Origins lists the exact origins accepted in clientDataJSON.
	Origins []string `yaml:"origins"`
	// AppID is the legacy U2F application id. Required for legacy credentials.
	AppID            string        `yaml:"app_id"`
	Timeout          time.Duration `yaml:"timeout"`
	UserVerification string        `yaml:"user_verification"`
	// ChallengeTTL bounds how long an issued challenge can be answered.
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// Provider verifies WebAuthn assertions and legacy U2F signatures through one
// code path. Counters and challenges live in Redis.
type Provider struct {
	cfg        Config
	challenges *stores.ChallengeStore
	counters   *stores.CredentialCounterStore
}

// New returns a provider storing its challenges and counters in rdb.
func New(cfg Config, rdb redis.UniversalClient) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = cfg.Timeout + 30*time.Second
	}
	if cfg.UserVerification == "" {
		cfg.UserVerification = defaultUserVerify
	}
	challengePrefix, counterPrefix := "", ""
	if cfg.KeyPrefix != "" {
		challengePrefix = cfg.KeyPrefix + ":c"
		counterPrefix = cfg.KeyPrefix + ":k"
	}
	return &Provider{
		cfg:        cfg,
		challenges: stores.NewChallengeStore(rdb, challengePrefix),
		counters:   stores.NewCredentialCounterStore(rdb, counterPrefix),
	}
}

func (p *Provider) Kind() factor.Kind { return factor.KindWebAuthn }

// CanGenerate reports whether the principal has at least one credential not
// flagged compromised in its payload. Flags persisted by the counter store
// are applied by Generate and Validate.
func (p *Provider) CanGenerate(principal *factor.Principal) bool {
	set, ok := credentialSet(principal)
	return ok && len(set.Usable()) > 0
}

type pendingData struct {
	Version     int      `json:"v"`
	Credentials []string `json:"c"`
}

// Generate issues assertion options for every usable credential and stores
// the challenge for a single Validate.
func (p *Provider) Generate(ctx context.Context, _ factor.Purpose, principal *factor.Principal) (*factor.Challenge, error) {
	creds, err := p.usable(ctx, principal)
	if err != nil {
		return nil, err
	}

	challenge, err := internal.NewChallenge()
	if err != nil {
		return nil, err
	}

	opts := &factor.AssertionOptions{
		Challenge:        challenge,
		Timeout:          p.cfg.Timeout.Milliseconds(),
		RPID:             p.cfg.RPID,
		AllowCredentials: make([]factor.CredentialDescriptor, 0, len(creds)),
		UserVerification: p.cfg.UserVerification,
	}
	data := pendingData{Version: pendingDataVersion, Credentials: make([]string, 0, len(creds))}
	legacy := false
	for _, c := range creds {
		id := base64.RawURLEncoding.EncodeToString(c.ID)
		opts.AllowCredentials = append(opts.AllowCredentials, factor.CredentialDescriptor{Type: credentialType, ID: id})
		data.Credentials = append(data.Credentials, id)
		legacy = legacy || c.Legacy
	}
	if legacy && p.cfg.AppID != "" {
		opts.Extensions = &factor.AssertionExtensions{AppID: p.cfg.AppID}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	err = p.challenges.Save(ctx, &stores.PendingChallenge{
		PrincipalID: principal.ID,
		Kind:        uint8(factor.KindWebAuthn),
		Handle:      challenge,
		Data:        encoded,
	}, p.cfg.ChallengeTTL)
	if err != nil {
		return nil, err
	}

	return &factor.Challenge{Kind: factor.KindWebAuthn, Assertion: opts}, nil
}

// Validate checks one assertion. The pending challenge it names is consumed
// before anything else, so a failed attempt cannot be retried with the same
// challenge.
func (p *Provider) Validate(ctx context.Context, _ factor.Purpose, proof string, principal *factor.Principal) (bool, error) {
	set, ok := credentialSet(principal)
	if !ok {
		return false, factor.ErrFactorNotConfigured
	}

	a, err := parseAssertion(proof)
	if err != nil {
		return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
	}

	pending, err := p.challenges.Consume(ctx, principal.ID, uint8(factor.KindWebAuthn), a.clientData.Challenge)
	if err != nil {
		if errors.Is(err, stores.ErrBackend) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", factor.ErrChallengeNotFound, err)
	}
	var data pendingData
	if err := json.Unmarshal(pending.Data, &data); err != nil {
		return false, fmt.Errorf("%w: pending challenge data: %v", factor.ErrFactorRejected, err)
	}

	if a.clientData.Type != clientDataTypeGet {
		return false, fmt.Errorf("%w: client data type %q", factor.ErrFactorRejected, a.clientData.Type)
	}
	if !p.originAllowed(a.clientData.Origin) {
		return false, fmt.Errorf("%w: origin %q not allowed", factor.ErrFactorRejected, a.clientData.Origin)
	}

	cred, ok := findCredential(set, a.credentialID, data.Credentials)
	if !ok {
		return false, fmt.Errorf("%w: credential not allowed for this challenge", factor.ErrFactorRejected)
	}

	rpID := p.cfg.RPID
	if cred.Legacy {
		rpID = p.cfg.AppID
	}
	auth, err := parseAuthenticatorData(a.authenticatorData)
	if err != nil {
		return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
	}
	if err := auth.check(rpID, p.cfg.UserVerification == "required"); err != nil {
		return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
	}

	if err := verifySignature(cred, a.authenticatorData, a.clientDataJSON, a.signature); err != nil {
		return false, fmt.Errorf("%w: %v", factor.ErrFactorRejected, err)
	}

	err = p.counters.Advance(ctx, principal.ID, cred.ID, cred.Counter, auth.counter)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, stores.ErrCounterNotIncreasing), errors.Is(err, stores.ErrCredentialCompromised):
		return false, fmt.Errorf("%w: %v", factor.ErrCounterReplay, err)
	default:
		return false, err
	}
}

// ValidateConfiguration checks that every registered key parses.
func (p *Provider) ValidateConfiguration(_ context.Context, rec factor.Record) error {
	set, ok := rec.Payload.(factor.PublicKeyCredentialSet)
	if !ok {
		return fmt.Errorf("%w: public key credential set expected", factor.ErrConfigurationInvalid)
	}
	if len(set.Credentials) == 0 {
		return fmt.Errorf("%w: no credentials registered", factor.ErrConfigurationInvalid)
	}
	for i, c := range set.Credentials {
		if len(c.ID) == 0 {
			return fmt.Errorf("%w: credential %d has no id", factor.ErrConfigurationInvalid, i)
		}
		if c.Legacy && p.cfg.AppID == "" {
			return fmt.Errorf("%w: legacy credential %d needs an app id", factor.ErrConfigurationInvalid, i)
		}
		if _, err := parsePublicKey(c); err != nil {
			return fmt.Errorf("%w: credential %d: %v", factor.ErrConfigurationInvalid, i, err)
		}
	}
	return nil
}

func (p *Provider) usable(ctx context.Context, principal *factor.Principal) ([]factor.PublicKeyCredential, error) {
	set, ok := credentialSet(principal)
	if !ok {
		return nil, factor.ErrFactorNotConfigured
	}
	creds := set.Usable()
	ids := make([][]byte, len(creds))
	for i, c := range creds {
		ids[i] = c.ID
	}
	flagged, err := p.counters.Compromised(ctx, principal.ID, ids)
	if err != nil {
		return nil, err
	}

	out := creds[:0]
	for _, c := range creds {
		if flagged[base64.RawURLEncoding.EncodeToString(c.ID)] {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, factor.ErrFactorNotConfigured
	}
	return out, nil
}

func (p *Provider) originAllowed(origin string) bool {
	for _, o := range p.cfg.Origins {
		if strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	return false
}

func credentialSet(principal *factor.Principal) (factor.PublicKeyCredentialSet, bool) {
	rec, ok := principal.EnabledRecord(factor.KindWebAuthn)
	if !ok {
		return factor.PublicKeyCredentialSet{}, false
	}
	set, ok := rec.Payload.(factor.PublicKeyCredentialSet)
	return set, ok
}

func findCredential(set factor.PublicKeyCredentialSet, id []byte, allowed []string) (factor.PublicKeyCredential, bool) {
	encoded := base64.RawURLEncoding.EncodeToString(id)
	permitted := false
	for _, a := range allowed {
		if a == encoded {
			permitted = true
			break
		}
	}
	if !permitted {
		return factor.PublicKeyCredential{}, false
	}
	for _, c := range set.Usable() {
		if base64.RawURLEncoding.EncodeToString(c.ID) == encoded {
			return c, true
		}
	}
	return factor.PublicKeyCredential{}, false
}
