package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// AuthMethod records how far a sign-in progressed when the token was minted.
type AuthMethod string

const (
	// AuthPrimary is a password-only sign-in for a principal with no factor.
	AuthPrimary AuthMethod = "primary"
	// AuthTwoFactorPending is the challenge vehicle between sign-in phases.
	// It carries no scope and no device claim.
	AuthTwoFactorPending AuthMethod = "two-factor-pending"
	// AuthTwoFactor is a sign-in completed with an affirmed second factor.
	AuthTwoFactor AuthMethod = "two-factor"
)

// Valid reports whether m is one of the known methods.
func (m AuthMethod) Valid() bool {
	switch m {
	case AuthPrimary, AuthTwoFactorPending, AuthTwoFactor:
		return true
	default:
		return false
	}
}

const rememberTokenType = "remember+jwt"

var (
	ErrTokenInvalid     = errors.New("token invalid")
	ErrWrongTokenType   = errors.New("token type mismatch")
	ErrUnknownAuthState = errors.New("unknown auth method")
)

// Config holds signing keys and lifetimes.
type Config struct {
	AccessTTL     time.Duration     `yaml:"access_ttl"`
	PendingTTL    time.Duration     `yaml:"pending_ttl"`
	RememberTTL   time.Duration     `yaml:"remember_ttl"`
	SigningMethod SigningMethod     `yaml:"signing_method"`
	PrivateKey    []byte            `yaml:"-"`
	PublicKey     []byte            `yaml:"-"`
	Issuer        string            `yaml:"issuer"`
	Audience      string            `yaml:"audience"`
	Leeway        time.Duration     `yaml:"leeway"`
	RequireIAT    bool              `yaml:"require_iat"`
	MaxFutureIAT  time.Duration     `yaml:"max_future_iat"`
	KeyID         string            `yaml:"key_id"`
	VerifyKeys    map[string][]byte `yaml:"-"`
}

// Manager mints and parses sign-in and remember tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the sign-in token claim set.
type Claims struct {
	SecurityStamp string     `json:"sstamp"`
	AuthMethod    AuthMethod `json:"amr"`
	Scope         []string   `json:"scope,omitempty"`
	DeviceID      string     `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// RememberClaims scope a remembered-device token to one principal and one
// device.
type RememberClaims struct {
	SecurityStamp string `json:"sstamp"`
	DeviceID      string `json:"did"`
	jwt.RegisteredClaims
}

// IssueParams describes one sign-in token.
type IssueParams struct {
	Subject       string
	SecurityStamp string
	AuthMethod    AuthMethod
	Scope         []string
	DeviceID      string
}

// NewManager validates cfg and returns a Manager. Zero lifetimes default to
// AccessTTL for pending tokens and 30 days for remember tokens.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = cfg.AccessTTL
	}
	if cfg.RememberTTL == 0 {
		cfg.RememberTTL = 30 * 24 * time.Hour
	}
	if cfg.PendingTTL < 0 || cfg.RememberTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// TTL returns the lifetime used for tokens of method m.
func (j *Manager) TTL(m AuthMethod) time.Duration {
	if m == AuthTwoFactorPending {
		return j.config.PendingTTL
	}
	return j.config.AccessTTL
}

// RememberTTL returns the remembered-device token lifetime.
func (j *Manager) RememberTTL() time.Duration {
	return j.config.RememberTTL
}

// Issue mints a sign-in token. Pending tokens never carry scope or device
// claims, whatever p contains.
func (j *Manager) Issue(p IssueParams) (string, time.Time, error) {
	if !p.AuthMethod.Valid() {
		return "", time.Time{}, ErrUnknownAuthState
	}
	if p.Subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}

	now := j.now()
	exp := now.Add(j.TTL(p.AuthMethod))

	claims := Claims{
		SecurityStamp:    p.SecurityStamp,
		AuthMethod:       p.AuthMethod,
		RegisteredClaims: j.registered(p.Subject, now, exp),
	}
	if p.AuthMethod != AuthTwoFactorPending {
		claims.Scope = p.Scope
		claims.DeviceID = p.DeviceID
	}

	signed, err := j.sign(jwt.NewWithClaims(j.getMethod(), claims))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies a sign-in token. Remember tokens are rejected.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := j.parse(tokenStr, claims)
	if err != nil {
		return nil, err
	}
	if typ, _ := token.Header["typ"].(string); typ == rememberTokenType {
		return nil, ErrWrongTokenType
	}
	if !claims.AuthMethod.Valid() {
		return nil, ErrUnknownAuthState
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueRemember mints a remembered-device token for (subject, deviceID).
func (j *Manager) IssueRemember(subject, stamp, deviceID string) (string, time.Time, error) {
	if subject == "" || deviceID == "" {
		return "", time.Time{}, errors.New("remember token requires subject and device")
	}

	now := j.now()
	exp := now.Add(j.config.RememberTTL)

	token := jwt.NewWithClaims(j.getMethod(), RememberClaims{
		SecurityStamp:    stamp,
		DeviceID:         deviceID,
		RegisteredClaims: j.registered(subject, now, exp),
	})
	token.Header["typ"] = rememberTokenType

	signed, err := j.sign(token)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseRemember verifies signature and expiry of a remember token. Binding
// to principal, device and stamp is left to the caller.
func (j *Manager) ParseRemember(tokenStr string) (*RememberClaims, error) {
	claims := &RememberClaims{}
	token, err := j.parse(tokenStr, claims)
	if err != nil {
		return nil, err
	}
	if typ, _ := token.Header["typ"].(string); typ != rememberTokenType {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" || claims.DeviceID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (j *Manager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) sign(token *jwt.Token) (string, error) {
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) (*jwt.Token, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return j.keyBytesToVerifyKey(key)
		}

		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return j.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	iat, _ := claims.GetIssuedAt()
	if iat != nil && j.config.MaxFutureIAT > 0 {
		if iat.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
			return nil, errors.New("token iat too far in the future")
		}
	}
	return token, nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
