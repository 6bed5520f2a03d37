package goFactor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/devices"
	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/factor/authenticator"
	"github.com/MrEthical07/goFactor/factor/duo"
	"github.com/MrEthical07/goFactor/factor/duoweb"
	"github.com/MrEthical07/goFactor/factor/remember"
	"github.com/MrEthical07/goFactor/factor/webauthn"
	"github.com/MrEthical07/goFactor/factor/yubikey"
	"github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/internal/logging"
	"github.com/MrEthical07/goFactor/internal/stores"
	"github.com/MrEthical07/goFactor/jwt"
	"github.com/MrEthical07/goFactor/password"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	principals  PrincipalProvider
	passwords   PasswordVerifier
	hashes      password.HashStore
	deviceStore DeviceStore
	httpClient  *http.Client
	logger      *zap.Logger
	auditSink   AuditSink
	providers   map[factor.Kind]factor.Provider

	built bool
}

func New() *Builder {
	return &Builder{
		config:    defaultConfig(),
		providers: map[factor.Kind]factor.Provider{},
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for pending challenges, signature counters,
// used time steps and, by default, devices.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithPrincipalProvider(p PrincipalProvider) *Builder {
	b.principals = p
	return b
}

func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

// WithPasswordHashStore installs a password.Argon2Verifier over store, using
// Config.Password. It is ignored when WithPasswordVerifier is also set.
func (b *Builder) WithPasswordHashStore(store password.HashStore) *Builder {
	b.hashes = store
	return b
}

// WithDeviceStore replaces the store selected by Config.Devices, e.g. with a
// pgstore.Store.
func (b *Builder) WithDeviceStore(s DeviceStore) *Builder {
	b.deviceStore = s
	return b
}

// WithHTTPClient sets the client used for Duo and Yubico calls.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithProvider registers p for its kind, replacing the built-in provider.
func (b *Builder) WithProvider(p factor.Provider) *Builder {
	if p != nil {
		b.providers[p.Kind()] = p
	}
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.principals == nil {
		return nil, errors.New("principal provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = logging.New(logging.Config{
			Env:     cfg.Logging.Env,
			Level:   cfg.Logging.Level,
			Service: cfg.Logging.Service,
		})
	}

	verifier := b.passwords
	if verifier == nil {
		if b.hashes == nil {
			return nil, errors.New("password verifier or password hash store required")
		}
		hasher, err := password.NewArgon2(cfg.Password)
		if err != nil {
			return nil, err
		}
		av, err := password.NewArgon2Verifier(hasher, b.hashes)
		if err != nil {
			return nil, err
		}
		verifier = av
	}

	jm, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, err
	}

	providers, err := b.buildProviders(cfg, jm)
	if err != nil {
		return nil, err
	}

	deviceStore := b.deviceStore
	if deviceStore == nil && cfg.Devices.Enabled {
		switch cfg.Devices.Backend {
		case "memory":
			deviceStore = devices.NewMemoryStore(cfg.Devices.TTL)
		default:
			deviceStore = devices.NewRedisStore(b.redis, cfg.Devices.KeyPrefix, cfg.Devices.TTL)
		}
	}

	auditSink := b.auditSink
	if auditSink == nil {
		auditSink = audit.NewLogSink(logger)
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		principals:  b.principals,
		passwords:   verifier,
		providers:   providers,
		deviceStore: deviceStore,
		jwtManager:  jm,
		logger:      logger,
		audit:       audit.NewDispatcher(cfg.Audit, auditSink, logger.Named("audit")),
		metrics:     NewMetrics(cfg.Metrics),
	}
	if rp, ok := providers[factor.KindRemember].(*remember.Provider); ok {
		engine.remember = rp
	}
	engine.deps = engine.signInDeps()

	b.built = true

	logger.Info("goFactor engine ready",
		zap.Int("providers", len(providers)),
		zap.Bool("devices", deviceStore != nil),
		zap.Bool("audit", cfg.Audit.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return engine, nil
}

// buildProviders registers the built-in provider for every enabled kind,
// then applies WithProvider overrides.
func (b *Builder) buildProviders(cfg Config, jm *jwt.Manager) (map[factor.Kind]factor.Provider, error) {
	providers := make(map[factor.Kind]factor.Provider, 8)

	if cfg.TOTP.Enabled {
		var marker authenticator.StepMarker
		if cfg.TOTP.EnforceReplayProtection {
			marker = stores.NewUsedCodeStore(b.redis, cfg.TOTP.KeyPrefix)
		}
		providers[factor.KindAuthenticator] = authenticator.New(marker)
	}
	if cfg.WebAuthn.Enabled {
		providers[factor.KindWebAuthn] = webauthn.New(cfg.WebAuthn.Config, b.redis)
	}
	if cfg.Duo.Enabled {
		providers[factor.KindDuo] = duo.New(cfg.Duo.Config, b.redis, b.httpClient)
	}
	if cfg.Duo.LegacyEnabled {
		providers[factor.KindDuoLegacy] = duoweb.NewUser(cfg.Duo.ApplicationKey)
	}
	if cfg.Duo.OrganizationEnabled {
		providers[factor.KindOrganizationDuo] = duoweb.NewOrganization(cfg.Duo.ApplicationKey)
	}
	if cfg.Yubico.Enabled {
		yp, err := yubikey.New(cfg.Yubico.Config, b.httpClient)
		if err != nil {
			return nil, err
		}
		providers[factor.KindYubiKey] = yp
	}
	if cfg.Remember.Enabled {
		providers[factor.KindRemember] = remember.New(jm)
	}

	for kind, p := range b.providers {
		if !kind.Valid() {
			return nil, fmt.Errorf("provider registered for unknown kind %d", kind)
		}
		providers[kind] = p
	}
	return providers, nil
}
