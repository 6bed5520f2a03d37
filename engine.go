package goFactor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/devices"
	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/factor/remember"
	"github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/internal/flows"
	"github.com/MrEthical07/goFactor/internal/logging"
	"github.com/MrEthical07/goFactor/jwt"
)

// Engine is the sign-in coordinator. It is safe for concurrent use; all
// state that spans the two sign-in phases lives in Redis or in tokens.
type Engine struct {
	config      Config
	principals  PrincipalProvider
	passwords   PasswordVerifier
	providers   map[factor.Kind]factor.Provider
	remember    *remember.Provider
	deviceStore DeviceStore
	jwtManager  *jwt.Manager
	logger      *zap.Logger
	audit       *audit.Dispatcher
	metrics     *Metrics

	deps flows.SignInDeps
	// delay replaces flows.Sleep in tests.
	delay func(context.Context, time.Duration)
}

// SignIn verifies the password. A principal with no offered factor gets a
// primary token; otherwise the result carries a two-factor-pending token, the
// offered factors and the challenge for the selected factor.
//
// Every rejection returns ErrInvalidCredential after Config.SignIn.FailureDelay.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricSignInLatency, time.Since(start)) }()

	out, err := flows.RunSignIn(ctx, flows.SignInInput{
		Identifier:       req.Identifier,
		Password:         req.Password,
		DeviceIdentifier: req.DeviceIdentifier,
		DeviceName:       req.DeviceName,
		Factor:           req.Factor,
		Purpose:          req.Purpose,
		RememberToken:    req.RememberToken,
	}, e.flowDeps())
	if err != nil {
		return nil, err
	}
	return toResult(out), nil
}

// VerifyFactor completes a pending sign-in with a proof for req.Kind. Every
// rejection, whatever its cause, returns ErrFactorRejected after the same
// delay as SignIn.
func (e *Engine) VerifyFactor(ctx context.Context, req VerifyFactorRequest) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricSignInLatency, time.Since(start)) }()

	out, err := flows.RunVerifyFactor(ctx, flows.VerifyInput{
		ChallengeToken:   req.ChallengeToken,
		Kind:             req.Kind,
		Purpose:          req.Purpose,
		Proof:            req.Proof,
		DeviceIdentifier: req.DeviceIdentifier,
		DeviceName:       req.DeviceName,
		Remember:         req.Remember,
	}, e.flowDeps())
	if err != nil {
		return nil, err
	}
	return toResult(out), nil
}

// GenerateChallenge issues a challenge for another offered factor during a
// pending sign-in, e.g. a Duo push after the client chose it.
func (e *Engine) GenerateChallenge(ctx context.Context, challengeToken string, kind factor.Kind, purpose factor.Purpose) (*factor.Challenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return flows.RunGenerateChallenge(ctx, challengeToken, kind, purpose, e.flowDeps())
}

// ValidateFactorConfiguration checks a factor record at configuration time.
// Duo push records are round-tripped against the Duo check endpoint. Errors
// wrap ErrConfigurationInvalid or ErrRemoteUnavailable.
func (e *Engine) ValidateFactorConfiguration(ctx context.Context, rec Record) error {
	if e == nil {
		return ErrEngineNotReady
	}
	log := logging.From(ctx, e.logger).With(logging.Op("validate_configuration"), logging.Factor(rec.Kind))

	provider, ok := e.providers[rec.Kind]
	if !ok {
		return fmt.Errorf("%w: no provider for %s", ErrFactorNotConfigured, rec.Kind)
	}
	if rec.Payload == nil || !factor.Fits(rec.Kind, rec.Payload) {
		log.Error("factor payload does not match kind")
		return fmt.Errorf("%w: payload does not match kind %s", ErrConfigurationInvalid, rec.Kind)
	}
	cp, ok := provider.(factor.Configurable)
	if !ok {
		return nil
	}
	if err := cp.ValidateConfiguration(ctx, rec); err != nil {
		log.Error("factor configuration rejected", logging.Err(err))
		return err
	}
	return nil
}

// Record is a factor record as accepted by ValidateFactorConfiguration.
type Record = factor.Record

// Offered returns the factors the principal would be offered, in challenge
// priority order. It performs no I/O.
func (e *Engine) Offered(p *factor.Principal) []FactorOption {
	if e == nil {
		return nil
	}
	return options(flows.Offered(p, e.providers, factor.Priority()))
}

// Kinds returns the registered kinds in ascending order.
func (e *Engine) Kinds() []factor.Kind {
	if e == nil {
		return nil
	}
	out := make([]factor.Kind, 0, len(e.providers))
	for k := range e.providers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IssueRememberToken mints a remembered-device token outside VerifyFactor,
// e.g. for a caller that asks after the fact.
func (e *Engine) IssueRememberToken(p *factor.Principal, deviceIdentifier string) (string, time.Time, error) {
	if e == nil || e.remember == nil {
		return "", time.Time{}, ErrFactorNotConfigured
	}
	tok, exp, err := e.remember.Issue(p, deviceIdentifier)
	if err == nil {
		e.metrics.Inc(MetricRememberIssued)
	}
	return tok, exp, err
}

// ParseToken verifies a token minted by the engine.
func (e *Engine) ParseToken(token string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.jwtManager.Parse(token)
}

func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close drains pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
	_ = e.logger.Sync()
}

func (e *Engine) flowDeps() flows.SignInDeps {
	deps := e.deps
	if e.delay != nil {
		deps.Delay = e.delay
	}
	return deps
}

func (e *Engine) signInDeps() flows.SignInDeps {
	deps := flows.SignInDeps{
		FailureDelay:             e.config.SignIn.FailureDelay,
		Scope:                    e.config.SignIn.Scope,
		Now:                      time.Now,
		Delay:                    flows.Sleep,
		GetPrincipalByIdentifier: e.principals.GetPrincipalByIdentifier,
		GetPrincipalByID:         e.principals.GetPrincipalByID,
		VerifyPassword:           e.passwords.VerifyPassword,
		Providers:                e.providers,
		Order:                    factor.Priority(),
		IssueToken:               e.jwtManager.Issue,
		ParseToken:               e.jwtManager.Parse,
		MetricInc:                func(id int) { e.metrics.Inc(MetricID(id)) },
		EmitAudit:                e.emitAudit,
		Logger:                   e.logger,
		Metrics: flows.SignInMetrics{
			SignInSuccess:     int(MetricSignInSuccess),
			SignInFailure:     int(MetricSignInFailure),
			TwoFactorRequired: int(MetricTwoFactorRequired),
			FactorSuccess:     int(MetricFactorSuccess),
			FactorFailure:     int(MetricFactorFailure),
			RemoteUnavailable: int(MetricRemoteUnavailable),
			StampMismatch:     int(MetricStampMismatch),
			CounterReplay:     int(MetricCounterReplay),
			RememberIssued:    int(MetricRememberIssued),
			RememberUsed:      int(MetricRememberUsed),
			DeviceCreated:     int(MetricDeviceCreated),
			ChallengeIssued:   int(MetricChallengeIssued),
		},
		Events: flows.SignInEvents{
			SignInSuccess:         auditEventSignInSuccess,
			SignInFailure:         auditEventSignInFailure,
			TwoFactorRequired:     auditEventTwoFactorRequired,
			FactorSuccess:         auditEventFactorSuccess,
			FactorFailure:         auditEventFactorFailure,
			RemoteUnavailable:     auditEventRemoteUnavailable,
			CredentialCompromised: auditEventCredentialCompromised,
			DeviceRegistered:      auditEventDeviceRegistered,
			RememberIssued:        auditEventRememberIssued,
			ChallengeIssued:       auditEventChallengeIssued,
		},
		Errors: flows.SignInErrors{
			EngineNotReady:        ErrEngineNotReady,
			InvalidCredential:     ErrInvalidCredential,
			FactorRejected:        ErrFactorRejected,
			FactorNotConfigured:   ErrFactorNotConfigured,
			ChallengeTokenInvalid: ErrChallengeTokenInvalid,
		},
	}
	if e.remember != nil {
		deps.IssueRemember = e.remember.Issue
	}
	if e.deviceStore != nil {
		deps.FindDevice = e.deviceStore.Find
		deps.SaveDevice = e.deviceStore.Save
	}
	return deps
}

func toResult(out *flows.Outcome) *SignInResult {
	if out == nil {
		return nil
	}
	return &SignInResult{
		AuthMethod:    out.AuthMethod,
		Token:         out.Token,
		ExpiresAt:     out.ExpiresAt,
		Factors:       options(out.Factors),
		Challenge:     out.Challenge,
		RememberToken: out.RememberToken,
		Device:        out.Device,
		NewDevice:     out.NewDevice,
	}
}

func options(kinds []factor.Kind) []FactorOption {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]FactorOption, len(kinds))
	for i, k := range kinds {
		out[i] = FactorOption{Kind: k, Name: k.String()}
	}
	return out
}

var _ DeviceStore = (*devices.MemoryStore)(nil)
