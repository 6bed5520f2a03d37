package goFactor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goFactor/factor/duo"
	"github.com/MrEthical07/goFactor/factor/duoweb"
	"github.com/MrEthical07/goFactor/factor/webauthn"
	"github.com/MrEthical07/goFactor/factor/yubikey"
	"github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/jwt"
	"github.com/MrEthical07/goFactor/password"
)

// Config is the full engine configuration. Secrets carry yaml:"-" and are
// read from the environment by LoadConfig.
type Config struct {
	JWT      jwt.Config      `yaml:"jwt"`
	SignIn   SignInConfig    `yaml:"signin"`
	Password password.Config `yaml:"password"`
	TOTP     TOTPConfig      `yaml:"totp"`
	WebAuthn WebAuthnConfig  `yaml:"webauthn"`
	Duo      DuoConfig       `yaml:"duo"`
	Yubico   YubicoConfig    `yaml:"yubico"`
	Remember RememberConfig  `yaml:"remember"`
	Devices  DevicesConfig   `yaml:"devices"`
	Redis    RedisConfig     `yaml:"redis"`
	Audit    AuditConfig     `yaml:"audit"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Logging  LoggingConfig   `yaml:"logging"`
}

/*
====================================
SIGN-IN CONFIG
====================================
*/

// SignInConfig controls the coordinator.
type SignInConfig struct {
	// FailureDelay is added to every rejected request, whatever the cause.
	FailureDelay time.Duration `yaml:"failure_delay"`
	// Scope is copied into primary and two-factor tokens.
	Scope []string `yaml:"scope"`
}

/*
====================================
FACTOR CONFIG
====================================
*/

type TOTPConfig struct {
	Enabled bool `yaml:"enabled"`
	// EnforceReplayProtection rejects a second use of the same time step.
	EnforceReplayProtection bool   `yaml:"enforce_replay_protection"`
	KeyPrefix               string `yaml:"key_prefix"`
}

type WebAuthnConfig struct {
	Enabled         bool `yaml:"enabled"`
	webauthn.Config `yaml:",inline"`
}

// DuoConfig covers the Auth API push provider and both Duo Web signed
// challenge providers.
type DuoConfig struct {
	Enabled             bool `yaml:"enabled"`
	LegacyEnabled       bool `yaml:"legacy_enabled"`
	OrganizationEnabled bool `yaml:"organization_enabled"`
	// ApplicationKey signs Duo Web requests. At least 40 characters.
	ApplicationKey string `yaml:"-"`
	duo.Config     `yaml:",inline"`
}

type YubicoConfig struct {
	Enabled        bool `yaml:"enabled"`
	yubikey.Config `yaml:",inline"`
}

type RememberConfig struct {
	Enabled bool `yaml:"enabled"`
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// DevicesConfig selects the built-in device store when none is supplied with
// Builder.WithDeviceStore.
type DevicesConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "redis" (default) or "memory".
	Backend   string        `yaml:"backend"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RedisConfig is used by the operator CLI to dial Redis. The engine itself
// receives a client through Builder.WithRedis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

type AuditConfig = audit.Config

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

type LoggingConfig struct {
	// Env is "dev" (console) or "prod" (JSON).
	Env     string `yaml:"env"`
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: jwt.Config{
			AccessTTL:     15 * time.Minute,
			PendingTTL:    5 * time.Minute,
			RememberTTL:   30 * 24 * time.Hour,
			SigningMethod: jwt.MethodEd25519,
		},
		SignIn: SignInConfig{
			FailureDelay: 2 * time.Second,
		},
		Password: password.DefaultConfig(),
		TOTP: TOTPConfig{
			Enabled:                 true,
			EnforceReplayProtection: true,
		},
		WebAuthn: WebAuthnConfig{
			Config: webauthn.Config{
				Timeout:          60 * time.Second,
				UserVerification: "discouraged",
			},
		},
		Duo: DuoConfig{
			Config: duo.Config{
				Timeout:       15 * time.Second,
				StatusTimeout: 65 * time.Second,
				ChallengeTTL:  5 * time.Minute,
			},
		},
		Yubico: YubicoConfig{
			Config: yubikey.Config{
				Timeout: 10 * time.Second,
			},
		},
		Remember: RememberConfig{
			Enabled: true,
		},
		Devices: DevicesConfig{
			Enabled: true,
			Backend: "redis",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Env:     "dev",
			Level:   "info",
			Service: "gofactor",
		},
	}
}

// DefaultConfig returns the defaults used by New and LoadConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.SignIn.Scope = append([]string(nil), cfg.SignIn.Scope...)
	out.WebAuthn.Origins = append([]string(nil), cfg.WebAuthn.Origins...)
	out.Yubico.ValidationURLs = append([]string(nil), cfg.Yubico.ValidationURLs...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. Per-provider payloads are checked
// separately with Engine.ValidateFactorConfiguration.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.PendingTTL < 0 || c.JWT.RememberTTL < 0 {
		return errors.New("JWT PendingTTL and RememberTTL must be >= 0")
	}
	if c.JWT.PendingTTL > 30*time.Minute {
		return errors.New("JWT PendingTTL must not exceed 30m")
	}
	if c.JWT.SigningMethod != jwt.MethodEd25519 && c.JWT.SigningMethod != jwt.MethodHS256 {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return fmt.Errorf("%s requires PrivateKey", c.JWT.SigningMethod)
	}
	if c.JWT.SigningMethod == jwt.MethodEd25519 && len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}

	// Sign-in
	if c.SignIn.FailureDelay < 0 || c.SignIn.FailureDelay > 30*time.Second {
		return errors.New("SignIn FailureDelay must be between 0 and 30s")
	}

	// Factors
	if c.WebAuthn.Enabled {
		if strings.TrimSpace(c.WebAuthn.RPID) == "" {
			return errors.New("WebAuthn RPID is required")
		}
		if len(c.WebAuthn.Origins) == 0 {
			return errors.New("WebAuthn requires at least one origin")
		}
		switch c.WebAuthn.UserVerification {
		case "", "discouraged", "preferred", "required":
		default:
			return errors.New("WebAuthn UserVerification must be discouraged, preferred or required")
		}
	}
	if (c.Duo.LegacyEnabled || c.Duo.OrganizationEnabled) && len(c.Duo.ApplicationKey) < duoweb.MinApplicationKeyLen {
		return fmt.Errorf("Duo ApplicationKey must be at least %d characters", duoweb.MinApplicationKeyLen)
	}
	if c.Duo.Enabled && (c.Duo.Timeout < 0 || c.Duo.StatusTimeout < 0) {
		return errors.New("Duo timeouts must be >= 0")
	}
	if c.Yubico.Enabled && strings.TrimSpace(c.Yubico.ClientID) == "" {
		return errors.New("Yubico ClientID is required")
	}

	// Devices
	if c.Devices.Enabled {
		switch c.Devices.Backend {
		case "", "redis", "memory":
		default:
			return errors.New(`Devices Backend must be "redis" or "memory"`)
		}
		if c.Devices.TTL < 0 {
			return errors.New("Devices TTL must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
