package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/devices"
	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/internal/logging"
	"github.com/MrEthical07/goFactor/jwt"
)

// SignInInput is the flow-local sign-in request.
type SignInInput struct {
	Identifier       string
	Password         string
	DeviceIdentifier string
	DeviceName       string
	// Factor selects the kind to challenge; nil picks by priority.
	Factor        *factor.Kind
	Purpose       factor.Purpose
	RememberToken string
}

// VerifyInput is the flow-local factor-verification request.
type VerifyInput struct {
	ChallengeToken   string
	Kind             factor.Kind
	Purpose          factor.Purpose
	Proof            string
	DeviceIdentifier string
	DeviceName       string
	Remember         bool
}

// Outcome is returned for every non-rejected request.
type Outcome struct {
	AuthMethod    jwt.AuthMethod
	Token         string
	ExpiresAt     time.Time
	Factors       []factor.Kind
	Challenge     *factor.Challenge
	RememberToken string
	Device        *devices.Device
	NewDevice     bool
}

// SignInMetrics carries metric IDs used by the sign-in flows.
type SignInMetrics struct {
	SignInSuccess     int
	SignInFailure     int
	TwoFactorRequired int
	FactorSuccess     int
	FactorFailure     int
	RemoteUnavailable int
	StampMismatch     int
	CounterReplay     int
	RememberIssued    int
	RememberUsed      int
	DeviceCreated     int
	ChallengeIssued   int
}

// SignInEvents carries audit event names used by the sign-in flows.
type SignInEvents struct {
	SignInSuccess         string
	SignInFailure         string
	TwoFactorRequired     string
	FactorSuccess         string
	FactorFailure         string
	RemoteUnavailable     string
	CredentialCompromised string
	DeviceRegistered      string
	RememberIssued        string
	ChallengeIssued       string
}

// SignInErrors carries host-level sentinels.
type SignInErrors struct {
	EngineNotReady        error
	InvalidCredential     error
	FactorRejected        error
	FactorNotConfigured   error
	ChallengeTokenInvalid error
}

// AuditFunc emits one audit event. kind is nil when no factor is involved.
type AuditFunc func(ctx context.Context, event string, success bool, principalID string, kind *factor.Kind, deviceID string, err error, meta func() map[string]string)

// SignInDeps captures everything the coordinator needs. The engine builds it
// once; flows hold no state between calls.
type SignInDeps struct {
	FailureDelay time.Duration
	Scope        []string

	Now   func() time.Time
	Delay func(context.Context, time.Duration)

	GetPrincipalByIdentifier func(context.Context, string) (*factor.Principal, error)
	GetPrincipalByID         func(context.Context, string) (*factor.Principal, error)
	// VerifyPassword receives a nil principal for unknown identifiers and
	// should spend the same work as for a real mismatch.
	VerifyPassword func(context.Context, *factor.Principal, string) (bool, error)

	Providers map[factor.Kind]factor.Provider
	Order     []factor.Kind

	IssueToken    func(jwt.IssueParams) (string, time.Time, error)
	ParseToken    func(string) (*jwt.Claims, error)
	IssueRemember func(*factor.Principal, string) (string, time.Time, error)

	FindDevice func(context.Context, string, string) (*devices.Device, error)
	SaveDevice func(context.Context, *devices.Device) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics SignInMetrics
	Events  SignInEvents
	Errors  SignInErrors
}

func (d *SignInDeps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Delay == nil {
		d.Delay = Sleep
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, *factor.Kind, string, error, func() map[string]string) {}
	}
	if len(d.Order) == 0 {
		d.Order = factor.Priority()
	}
}

func (d *SignInDeps) ready() bool {
	return d.GetPrincipalByIdentifier != nil &&
		d.GetPrincipalByID != nil &&
		d.VerifyPassword != nil &&
		d.IssueToken != nil &&
		d.ParseToken != nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Offered returns the kinds the principal can be challenged with, in order.
// It never performs I/O.
func Offered(p *factor.Principal, providers map[factor.Kind]factor.Provider, order []factor.Kind) []factor.Kind {
	if p == nil {
		return nil
	}
	out := make([]factor.Kind, 0, len(order))
	for _, kind := range order {
		if kind == factor.KindRemember {
			continue
		}
		provider, ok := providers[kind]
		if !ok || provider == nil {
			continue
		}
		if provider.CanGenerate(p) {
			out = append(out, kind)
		}
	}
	return out
}

func contains(kinds []factor.Kind, k factor.Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

// RunSignIn verifies the password and either authenticates directly or
// issues a pending token plus a challenge for the selected factor.
func RunSignIn(ctx context.Context, in SignInInput, deps SignInDeps) (*Outcome, error) {
	deps.defaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	log := logging.From(ctx, deps.Logger).With(logging.Op("signin"))

	identifier := strings.TrimSpace(in.Identifier)
	reject := func(principalID, reason string, cause error) (*Outcome, error) {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, principalID, nil, in.DeviceIdentifier, deps.Errors.InvalidCredential, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		log.Debug("sign-in rejected", logging.PrincipalID(principalID), logging.Reason(reason), logging.Err(cause))
		deps.Delay(ctx, deps.FailureDelay)
		return nil, deps.Errors.InvalidCredential
	}

	if identifier == "" || in.Password == "" {
		return reject("", "empty_credentials", nil)
	}

	principal, err := deps.GetPrincipalByIdentifier(ctx, identifier)
	if err != nil || principal == nil {
		// Unknown principals pay for a password check too.
		_, _ = deps.VerifyPassword(ctx, nil, in.Password)
		if err != nil {
			log.Warn("principal lookup failed", logging.Err(err))
		}
		return reject("", "principal_not_found", err)
	}

	ok, err := deps.VerifyPassword(ctx, principal, in.Password)
	if err != nil || !ok {
		return reject(principal.ID, "password_mismatch", err)
	}

	offered := Offered(principal, deps.Providers, deps.Order)
	if len(offered) == 0 {
		out, err := authenticate(ctx, principal, jwt.AuthPrimary, in.DeviceIdentifier, in.DeviceName, &deps, log)
		if err != nil {
			return nil, err
		}
		deps.MetricInc(deps.Metrics.SignInSuccess)
		deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, principal.ID, nil, in.DeviceIdentifier, nil, func() map[string]string {
			return map[string]string{"auth_method": string(jwt.AuthPrimary)}
		})
		return out, nil
	}

	if in.RememberToken != "" {
		if out, ok := tryRemember(ctx, principal, in, offered, &deps, log); ok {
			return out, nil
		}
	}

	selected := offered[0]
	if in.Factor != nil {
		if contains(offered, *in.Factor) {
			selected = *in.Factor
		} else {
			log.Debug("requested factor not offered", logging.Factor(*in.Factor))
		}
	}

	token, exp, err := deps.IssueToken(jwt.IssueParams{
		Subject:       principal.ID,
		SecurityStamp: principal.SecurityStamp,
		AuthMethod:    jwt.AuthTwoFactorPending,
	})
	if err != nil {
		log.Error("pending token issue failed", logging.PrincipalID(principal.ID), logging.Err(err))
		return nil, err
	}

	challenge := generate(ctx, principal, selected, in.Purpose, &deps, log)

	deps.MetricInc(deps.Metrics.TwoFactorRequired)
	deps.EmitAudit(ctx, deps.Events.TwoFactorRequired, true, principal.ID, &selected, in.DeviceIdentifier, nil, func() map[string]string {
		return map[string]string{"offered": kindList(offered)}
	})

	return &Outcome{
		AuthMethod: jwt.AuthTwoFactorPending,
		Token:      token,
		ExpiresAt:  exp,
		Factors:    offered,
		Challenge:  challenge,
	}, nil
}

// tryRemember accepts a remembered-device token in place of the second
// factor. A rejected token falls through to the normal challenge.
func tryRemember(ctx context.Context, principal *factor.Principal, in SignInInput, offered []factor.Kind, deps *SignInDeps, log *zap.Logger) (*Outcome, bool) {
	provider, ok := deps.Providers[factor.KindRemember]
	if !ok || provider == nil {
		return nil, false
	}
	kind := factor.KindRemember
	valid, err := provider.Validate(factor.WithDevice(ctx, in.DeviceIdentifier), factor.PurposeDefault, in.RememberToken, principal)
	if !valid {
		recordFactorFailure(ctx, principal.ID, kind, in.DeviceIdentifier, err, deps, log)
		return nil, false
	}

	out, err := authenticate(ctx, principal, jwt.AuthTwoFactor, in.DeviceIdentifier, in.DeviceName, deps, log)
	if err != nil {
		return nil, false
	}
	out.Factors = offered
	deps.MetricInc(deps.Metrics.RememberUsed)
	deps.MetricInc(deps.Metrics.SignInSuccess)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, principal.ID, &kind, in.DeviceIdentifier, nil, func() map[string]string {
		return map[string]string{"auth_method": string(jwt.AuthTwoFactor)}
	})
	return out, true
}

func generate(ctx context.Context, principal *factor.Principal, kind factor.Kind, purpose factor.Purpose, deps *SignInDeps, log *zap.Logger) *factor.Challenge {
	provider := deps.Providers[kind]
	challenge, err := provider.Generate(ctx, purpose, principal)
	if err != nil {
		if errors.Is(err, factor.ErrRemoteUnavailable) {
			deps.MetricInc(deps.Metrics.RemoteUnavailable)
		}
		log.Warn("challenge generation failed", logging.PrincipalID(principal.ID), logging.Factor(kind), logging.Err(err))
		return nil
	}
	if challenge != nil {
		deps.MetricInc(deps.Metrics.ChallengeIssued)
		deps.EmitAudit(ctx, deps.Events.ChallengeIssued, true, principal.ID, &kind, "", nil, func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
	}
	return challenge
}

// RunVerifyFactor completes a pending sign-in. Every failure is reported as
// the same rejection after the same delay.
func RunVerifyFactor(ctx context.Context, in VerifyInput, deps SignInDeps) (*Outcome, error) {
	deps.defaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	log := logging.From(ctx, deps.Logger).With(logging.Op("verify_factor"), logging.Factor(in.Kind))
	kind := in.Kind

	reject := func(principalID, reason string, cause error) (*Outcome, error) {
		deps.MetricInc(deps.Metrics.FactorFailure)
		deps.EmitAudit(ctx, deps.Events.FactorFailure, false, principalID, &kind, in.DeviceIdentifier, cause, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		log.Debug("factor rejected", logging.PrincipalID(principalID), logging.Reason(reason), logging.Err(cause))
		deps.Delay(ctx, deps.FailureDelay)
		return nil, deps.Errors.FactorRejected
	}

	principal, err := pendingPrincipal(ctx, in.ChallengeToken, &deps)
	if err != nil {
		if errors.Is(err, factor.ErrStampMismatch) {
			deps.MetricInc(deps.Metrics.StampMismatch)
			log.Warn("challenge token stamp is stale", logging.PrincipalID(principalID(principal)))
			return reject(principalID(principal), "stamp_mismatch", err)
		}
		return reject("", "challenge_token_invalid", err)
	}

	provider, ok := deps.Providers[kind]
	if !ok || provider == nil {
		return reject(principal.ID, "unknown_factor", deps.Errors.FactorNotConfigured)
	}
	// Remember is never offered but may always be presented.
	if kind != factor.KindRemember && !provider.CanGenerate(principal) {
		return reject(principal.ID, "factor_not_configured", deps.Errors.FactorNotConfigured)
	}

	valid, err := provider.Validate(factor.WithDevice(ctx, in.DeviceIdentifier), in.Purpose, in.Proof, principal)
	if !valid {
		recordFactorFailure(ctx, principal.ID, kind, in.DeviceIdentifier, err, &deps, log)
		deps.Delay(ctx, deps.FailureDelay)
		return nil, deps.Errors.FactorRejected
	}

	out, err := authenticate(ctx, principal, jwt.AuthTwoFactor, in.DeviceIdentifier, in.DeviceName, &deps, log)
	if err != nil {
		return nil, err
	}
	if kind == factor.KindRemember {
		deps.MetricInc(deps.Metrics.RememberUsed)
	}

	if in.Remember && in.DeviceIdentifier != "" && deps.IssueRemember != nil && kind != factor.KindRemember {
		remember, _, err := deps.IssueRemember(principal, in.DeviceIdentifier)
		if err != nil {
			log.Warn("remember token issue failed", logging.PrincipalID(principal.ID), logging.Err(err))
		} else {
			out.RememberToken = remember
			deps.MetricInc(deps.Metrics.RememberIssued)
			deps.EmitAudit(ctx, deps.Events.RememberIssued, true, principal.ID, &kind, in.DeviceIdentifier, nil, nil)
		}
	}

	deps.MetricInc(deps.Metrics.FactorSuccess)
	deps.EmitAudit(ctx, deps.Events.FactorSuccess, true, principal.ID, &kind, in.DeviceIdentifier, nil, func() map[string]string {
		return map[string]string{"purpose": string(in.Purpose)}
	})
	return out, nil
}

// RunGenerateChallenge issues a challenge for another offered kind while a
// sign-in is pending, e.g. a push after the default passcode prompt.
func RunGenerateChallenge(ctx context.Context, challengeToken string, kind factor.Kind, purpose factor.Purpose, deps SignInDeps) (*factor.Challenge, error) {
	deps.defaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	log := logging.From(ctx, deps.Logger).With(logging.Op("generate_challenge"), logging.Factor(kind))

	principal, err := pendingPrincipal(ctx, challengeToken, &deps)
	if err != nil {
		if errors.Is(err, factor.ErrStampMismatch) {
			deps.MetricInc(deps.Metrics.StampMismatch)
		}
		return nil, deps.Errors.ChallengeTokenInvalid
	}
	if !contains(Offered(principal, deps.Providers, deps.Order), kind) {
		return nil, deps.Errors.FactorNotConfigured
	}

	challenge, err := deps.Providers[kind].Generate(ctx, purpose, principal)
	if err != nil {
		if errors.Is(err, factor.ErrRemoteUnavailable) {
			deps.MetricInc(deps.Metrics.RemoteUnavailable)
			log.Warn("challenge generation failed", logging.PrincipalID(principal.ID), logging.Err(err))
			return nil, factor.ErrRemoteUnavailable
		}
		log.Warn("challenge generation failed", logging.PrincipalID(principal.ID), logging.Err(err))
		return nil, err
	}
	if challenge != nil {
		deps.MetricInc(deps.Metrics.ChallengeIssued)
		deps.EmitAudit(ctx, deps.Events.ChallengeIssued, true, principal.ID, &kind, "", nil, func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
	}
	return challenge, nil
}

// pendingPrincipal re-derives the principal from a two-factor-pending token.
// On a stale stamp it returns the principal together with ErrStampMismatch.
func pendingPrincipal(ctx context.Context, token string, deps *SignInDeps) (*factor.Principal, error) {
	claims, err := deps.ParseToken(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if claims.AuthMethod != jwt.AuthTwoFactorPending {
		return nil, jwt.ErrWrongTokenType
	}
	principal, err := deps.GetPrincipalByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, deps.Errors.ChallengeTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(claims.SecurityStamp), []byte(principal.SecurityStamp)) != 1 {
		return principal, factor.ErrStampMismatch
	}
	return principal, nil
}

func recordFactorFailure(ctx context.Context, principalID string, kind factor.Kind, deviceID string, err error, deps *SignInDeps, log *zap.Logger) {
	deps.MetricInc(deps.Metrics.FactorFailure)
	event := deps.Events.FactorFailure
	switch {
	case errors.Is(err, factor.ErrRemoteUnavailable):
		deps.MetricInc(deps.Metrics.RemoteUnavailable)
		event = deps.Events.RemoteUnavailable
		log.Warn("remote verification unavailable", logging.PrincipalID(principalID), logging.Factor(kind), logging.Err(err))
	case errors.Is(err, factor.ErrCounterReplay):
		deps.MetricInc(deps.Metrics.CounterReplay)
		event = deps.Events.CredentialCompromised
		log.Warn("signature counter replay", logging.PrincipalID(principalID), logging.Factor(kind), logging.Err(err))
	case errors.Is(err, factor.ErrStampMismatch):
		deps.MetricInc(deps.Metrics.StampMismatch)
		log.Warn("factor token stamp is stale", logging.PrincipalID(principalID), logging.Factor(kind))
	default:
		log.Debug("factor proof rejected", logging.PrincipalID(principalID), logging.Factor(kind), logging.Err(err))
	}
	if err == nil {
		err = deps.Errors.FactorRejected
	}
	deps.EmitAudit(ctx, event, false, principalID, &kind, deviceID, err, nil)
}

// authenticate mints the final token and records the device. The device is
// created here and nowhere else.
func authenticate(ctx context.Context, principal *factor.Principal, method jwt.AuthMethod, deviceIdentifier, deviceName string, deps *SignInDeps, log *zap.Logger) (*Outcome, error) {
	device, created := ensureDevice(ctx, principal, deviceIdentifier, deviceName, deps, log)

	params := jwt.IssueParams{
		Subject:       principal.ID,
		SecurityStamp: principal.SecurityStamp,
		AuthMethod:    method,
		Scope:         deps.Scope,
	}
	if device != nil {
		params.DeviceID = device.ID
	}
	token, exp, err := deps.IssueToken(params)
	if err != nil {
		log.Error("token issue failed", logging.PrincipalID(principal.ID), logging.Err(err))
		return nil, err
	}
	return &Outcome{
		AuthMethod: method,
		Token:      token,
		ExpiresAt:  exp,
		Device:     device,
		NewDevice:  created,
	}, nil
}

// ensureDevice never fails the sign-in: store errors are logged and the
// token is issued without a device claim.
func ensureDevice(ctx context.Context, principal *factor.Principal, identifier, name string, deps *SignInDeps, log *zap.Logger) (*devices.Device, bool) {
	if identifier == "" || deps.FindDevice == nil || deps.SaveDevice == nil {
		return nil, false
	}
	existing, err := deps.FindDevice(ctx, principal.ID, identifier)
	if err == nil {
		return existing, false
	}
	if !errors.Is(err, devices.ErrNotFound) {
		log.Warn("device lookup failed", logging.PrincipalID(principal.ID), logging.Err(err))
		return nil, false
	}

	device, err := devices.New(principal.ID, identifier, name, deps.Now())
	if err != nil {
		return nil, false
	}
	if err := deps.SaveDevice(ctx, device); err != nil {
		log.Warn("device save failed", logging.PrincipalID(principal.ID), logging.Err(err))
		return nil, false
	}
	deps.MetricInc(deps.Metrics.DeviceCreated)
	deps.EmitAudit(ctx, deps.Events.DeviceRegistered, true, principal.ID, nil, identifier, nil, func() map[string]string {
		return map[string]string{"device_record": device.ID}
	})
	return device, true
}

func principalID(p *factor.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func kindList(kinds []factor.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}
