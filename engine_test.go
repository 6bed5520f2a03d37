package goFactor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/devices"
	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/factor/authenticator"
	"github.com/MrEthical07/goFactor/jwt"
)

const testSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

type memPrincipals struct {
	mu   sync.Mutex
	byID map[string]*factor.Principal
}

func newMemPrincipals(ps ...*factor.Principal) *memPrincipals {
	m := &memPrincipals{byID: map[string]*factor.Principal{}}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memPrincipals) GetPrincipalByIdentifier(_ context.Context, identifier string) (*factor.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Email == identifier {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPrincipals) GetPrincipalByID(_ context.Context, id string) (*factor.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) rotateStamp(id, stamp string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].SecurityStamp = stamp
}

// plainPasswords accepts "correct horse" for every known principal.
type plainPasswords struct {
	calls int
	nils  int
}

func (p *plainPasswords) VerifyPassword(_ context.Context, principal *factor.Principal, pw string) (bool, error) {
	p.calls++
	if principal == nil {
		p.nils++
		return false, nil
	}
	return pw == "correct horse", nil
}

type stubProvider struct {
	kind      factor.Kind
	validate  func(proof string) (bool, error)
	generated int
}

func (s *stubProvider) Kind() factor.Kind { return s.kind }

func (s *stubProvider) CanGenerate(p *factor.Principal) bool {
	_, ok := p.EnabledRecord(s.kind)
	return ok
}

func (s *stubProvider) Generate(context.Context, factor.Purpose, *factor.Principal) (*factor.Challenge, error) {
	s.generated++
	return &factor.Challenge{Kind: s.kind, Handle: "stub"}, nil
}

func (s *stubProvider) Validate(_ context.Context, _ factor.Purpose, proof string, _ *factor.Principal) (bool, error) {
	if s.validate == nil {
		return proof == "ok", nil
	}
	return s.validate(proof)
}

type delayRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (d *delayRecorder) record(_ context.Context, v time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, v)
}

func (d *delayRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = jwt.MethodHS256
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.SignIn.FailureDelay = 250 * time.Millisecond
	cfg.Devices.Backend = "memory"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type testEngine struct {
	*Engine
	principals *memPrincipals
	passwords  *plainPasswords
	delays     *delayRecorder
	sink       *ChannelSink
	mr         *miniredis.Miniredis
}

func newTestEngine(t *testing.T, cfg Config, principals *memPrincipals, extra ...factor.Provider) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	passwords := &plainPasswords{}
	sink := NewChannelSink(256)
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalProvider(principals).
		WithPasswordVerifier(passwords).
		WithLogger(zap.NewNop()).
		WithAuditSink(sink)
	for _, p := range extra {
		b.WithProvider(p)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	delays := &delayRecorder{}
	engine.delay = delays.record

	return &testEngine{
		Engine:     engine,
		principals: principals,
		passwords:  passwords,
		delays:     delays,
		sink:       sink,
		mr:         mr,
	}
}

// drainAudit closes the engine and returns every delivered event.
func (te *testEngine) drainAudit() []AuditEvent {
	te.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-te.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func alice() *factor.Principal {
	return &factor.Principal{
		ID:            "p-alice",
		Email:         "alice@example.com",
		SecurityStamp: "stamp-1",
	}
}

func aliceWithAuthenticator() *factor.Principal {
	p := alice()
	p.Factors = map[factor.Kind]factor.Record{
		factor.KindAuthenticator: {
			Kind:    factor.KindAuthenticator,
			Enabled: true,
			Payload: factor.AuthenticatorPayload{Secret: testSecret},
		},
	}
	return p
}

func currentCode(t *testing.T) string {
	t.Helper()
	code, err := authenticator.Code(testSecret, time.Now())
	if err != nil {
		t.Fatalf("authenticator.Code failed: %v", err)
	}
	return code
}

func TestSignInWithoutFactorsIssuesPrimaryToken(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(alice()))

	res, err := te.SignIn(context.Background(), SignInRequest{
		Identifier:       "alice@example.com",
		Password:         "correct horse",
		DeviceIdentifier: "dev-1",
		DeviceName:       "Laptop",
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if res.AuthMethod != jwt.AuthPrimary || res.Pending() {
		t.Fatalf("expected primary token, got %q", res.AuthMethod)
	}
	if len(res.Factors) != 0 {
		t.Fatalf("expected no factors, got %v", res.Factors)
	}
	if !res.NewDevice || res.Device == nil || res.Device.Name != "Laptop" {
		t.Fatalf("expected new device record, got %+v", res.Device)
	}

	claims, err := te.ParseToken(res.Token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Subject != "p-alice" || claims.DeviceID != res.Device.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := te.Metrics().Value(MetricSignInSuccess); got != 1 {
		t.Fatalf("expected 1 sign-in success, got %d", got)
	}
	if te.delays.count() != 0 {
		t.Fatalf("expected no failure delay on success")
	}
}

func TestSignInRejectsWithSameErrorAndDelay(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(aliceWithAuthenticator()))
	ctx := context.Background()

	cases := []SignInRequest{
		{Identifier: "alice@example.com", Password: "wrong"},
		{Identifier: "nobody@example.com", Password: "correct horse"},
		{Identifier: "", Password: ""},
	}
	for _, req := range cases {
		res, err := te.SignIn(ctx, req)
		if !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential for %q, got %v", req.Identifier, err)
		}
		if res != nil {
			t.Fatalf("expected nil result on rejection")
		}
	}

	if te.delays.count() != len(cases) {
		t.Fatalf("expected %d delays, got %d", len(cases), te.delays.count())
	}
	for _, d := range te.delays.calls {
		if d != 250*time.Millisecond {
			t.Fatalf("expected uniform 250ms delay, got %v", d)
		}
	}
	if te.passwords.nils != 1 {
		t.Fatalf("expected password work for unknown principal, got %d nil calls", te.passwords.nils)
	}
	if got := te.Metrics().Value(MetricSignInFailure); got != 3 {
		t.Fatalf("expected 3 failures, got %d", got)
	}
	if PublicMessage(ErrInvalidCredential) != GenericFailureMessage {
		t.Fatalf("unexpected public message")
	}
}

func TestTwoFactorSignInCreatesDeviceOnlyAfterSecondFactor(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(aliceWithAuthenticator()))
	ctx := context.Background()

	res, err := te.SignIn(ctx, SignInRequest{
		Identifier:       "alice@example.com",
		Password:         "correct horse",
		DeviceIdentifier: "dev-1",
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !res.Pending() {
		t.Fatalf("expected pending result, got %q", res.AuthMethod)
	}
	if len(res.Factors) != 1 || res.Factors[0].Kind != factor.KindAuthenticator || res.Factors[0].Name != "authenticator" {
		t.Fatalf("unexpected factors: %+v", res.Factors)
	}
	if res.Device != nil {
		t.Fatalf("device must not be created before the second factor")
	}
	if _, err := te.deviceStore.Find(ctx, "p-alice", "dev-1"); !errors.Is(err, devices.ErrNotFound) {
		t.Fatalf("expected no stored device after password phase, got %v", err)
	}

	claims, err := te.ParseToken(res.Token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.AuthMethod != jwt.AuthTwoFactorPending || claims.DeviceID != "" || len(claims.Scope) != 0 {
		t.Fatalf("pending token carries too much: %+v", claims)
	}

	done, err := te.VerifyFactor(ctx, VerifyFactorRequest{
		ChallengeToken:   res.Token,
		Kind:             factor.KindAuthenticator,
		Proof:            currentCode(t),
		DeviceIdentifier: "dev-1",
		DeviceName:       "Phone",
	})
	if err != nil {
		t.Fatalf("VerifyFactor failed: %v", err)
	}
	if done.AuthMethod != jwt.AuthTwoFactor {
		t.Fatalf("expected two-factor token, got %q", done.AuthMethod)
	}
	if !done.NewDevice || done.Device == nil {
		t.Fatalf("expected device after second factor")
	}
	if _, err := te.deviceStore.Find(ctx, "p-alice", "dev-1"); err != nil {
		t.Fatalf("expected stored device, got %v", err)
	}
}

func TestVerifyFactorRejectsWrongAndReplayedCodes(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(aliceWithAuthenticator()))
	ctx := context.Background()

	signIn := func() string {
		res, err := te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "correct horse"})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		return res.Token
	}

	_, err := te.VerifyFactor(ctx, VerifyFactorRequest{
		ChallengeToken: signIn(),
		Kind:           factor.KindAuthenticator,
		Proof:          "000000x",
	})
	if !errors.Is(err, ErrFactorRejected) {
		t.Fatalf("expected ErrFactorRejected for malformed code, got %v", err)
	}

	code := currentCode(t)
	if _, err := te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: signIn(), Kind: factor.KindAuthenticator, Proof: code}); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	_, err = te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: signIn(), Kind: factor.KindAuthenticator, Proof: code})
	if !errors.Is(err, ErrFactorRejected) {
		t.Fatalf("expected replayed code to be rejected, got %v", err)
	}

	if te.delays.count() != 2 {
		t.Fatalf("expected 2 delays, got %d", te.delays.count())
	}
}

func TestVerifyFactorRejectsGarbageAndPrimaryTokens(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(aliceWithAuthenticator()))
	ctx := context.Background()

	_, err := te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: "garbage", Kind: factor.KindAuthenticator, Proof: currentCode(t)})
	if !errors.Is(err, ErrFactorRejected) {
		t.Fatalf("expected ErrFactorRejected, got %v", err)
	}

	primary, _, err := te.jwtManager.Issue(jwt.IssueParams{Subject: "p-alice", SecurityStamp: "stamp-1", AuthMethod: jwt.AuthPrimary})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, err = te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: primary, Kind: factor.KindAuthenticator, Proof: currentCode(t)})
	if !errors.Is(err, ErrFactorRejected) {
		t.Fatalf("expected primary token to be refused, got %v", err)
	}
}

func TestStampRotationInvalidatesPendingToken(t *testing.T) {
	principals := newMemPrincipals(aliceWithAuthenticator())
	te := newTestEngine(t, testConfig(), principals)
	ctx := context.Background()

	res, err := te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	principals.rotateStamp("p-alice", "stamp-2")

	_, err = te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: res.Token, Kind: factor.KindAuthenticator, Proof: currentCode(t)})
	if !errors.Is(err, ErrFactorRejected) {
		t.Fatalf("expected ErrFactorRejected, got %v", err)
	}
	if got := te.Metrics().Value(MetricStampMismatch); got != 1 {
		t.Fatalf("expected stamp mismatch metric 1, got %d", got)
	}

	events := te.drainAudit()
	found := false
	for _, ev := range events {
		if ev.EventType == auditEventFactorFailure && ev.Error == string(auditErrStampMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stamp mismatch audit event, got %+v", events)
	}
}

func TestFactorSelectionAndChallengeGeneration(t *testing.T) {
	p := aliceWithAuthenticator()
	p.Factors[factor.KindYubiKey] = factor.Record{
		Kind:    factor.KindYubiKey,
		Enabled: true,
		Payload: factor.OTPIdentifierSet{IDs: []string{"cccccccccccb"}},
	}
	stub := &stubProvider{kind: factor.KindYubiKey}
	te := newTestEngine(t, testConfig(), newMemPrincipals(p), stub)
	ctx := context.Background()

	res, err := te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if len(res.Factors) != 2 || res.Factors[0].Kind != factor.KindYubiKey {
		t.Fatalf("expected yubikey first, got %+v", res.Factors)
	}
	if res.Challenge == nil || res.Challenge.Kind != factor.KindYubiKey {
		t.Fatalf("expected yubikey challenge, got %+v", res.Challenge)
	}

	want := factor.KindAuthenticator
	res, err = te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "correct horse", Factor: &want})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if res.Challenge != nil {
		t.Fatalf("authenticator issues no challenge, got %+v", res.Challenge)
	}
	if stub.generated != 1 {
		t.Fatalf("expected one stub challenge, got %d", stub.generated)
	}

	ch, err := te.GenerateChallenge(ctx, res.Token, factor.KindYubiKey, factor.PurposeDefault)
	if err != nil || ch == nil {
		t.Fatalf("GenerateChallenge failed: %v", err)
	}
	if _, err := te.GenerateChallenge(ctx, res.Token, factor.KindDuo, factor.PurposePush); !errors.Is(err, ErrFactorNotConfigured) {
		t.Fatalf("expected ErrFactorNotConfigured, got %v", err)
	}
	if _, err := te.GenerateChallenge(ctx, "garbage", factor.KindYubiKey, factor.PurposeDefault); !errors.Is(err, ErrChallengeTokenInvalid) {
		t.Fatalf("expected ErrChallengeTokenInvalid, got %v", err)
	}

	done, err := te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: res.Token, Kind: factor.KindYubiKey, Proof: "ok"})
	if err != nil || done.AuthMethod != jwt.AuthTwoFactor {
		t.Fatalf("expected stub factor to complete sign-in, got %v", err)
	}
}

func TestRemoteUnavailableIsRejectedAndCounted(t *testing.T) {
	p := alice()
	p.Factors = map[factor.Kind]factor.Record{
		factor.KindDuo: {Kind: factor.KindDuo, Enabled: true, Payload: factor.PushPayload{Host: "api-x.duosecurity.com"}},
	}
	stub := &stubProvider{
		kind: factor.KindDuo,
		validate: func(string) (bool, error) {
			return false, factor.ErrRemoteUnavailable
		},
	}
	te := newTestEngine(t, testConfig(), newMemPrincipals(p), stub)
	ctx := context.Background()

	res, err := te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	_, err = te.VerifyFactor(ctx, VerifyFactorRequest{ChallengeToken: res.Token, Kind: factor.KindDuo, Purpose: factor.PurposePush})
	if !errors.Is(err, ErrFactorRejected) {
		t.Fatalf("expected ErrFactorRejected, got %v", err)
	}
	if got := te.Metrics().Value(MetricRemoteUnavailable); got != 1 {
		t.Fatalf("expected remote unavailable metric 1, got %d", got)
	}

	found := false
	for _, ev := range te.drainAudit() {
		if ev.EventType == auditEventRemoteUnavailable && ev.Factor == "duo" && !ev.Success {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected remote unavailable audit event")
	}
}

func TestRememberedDeviceSkipsSecondFactor(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(aliceWithAuthenticator()))
	ctx := context.Background()

	res, err := te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "correct horse", DeviceIdentifier: "dev-1"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	done, err := te.VerifyFactor(ctx, VerifyFactorRequest{
		ChallengeToken:   res.Token,
		Kind:             factor.KindAuthenticator,
		Proof:            currentCode(t),
		DeviceIdentifier: "dev-1",
		Remember:         true,
	})
	if err != nil {
		t.Fatalf("VerifyFactor failed: %v", err)
	}
	if done.RememberToken == "" {
		t.Fatalf("expected remember token")
	}

	again, err := te.SignIn(ctx, SignInRequest{
		Identifier:       "alice@example.com",
		Password:         "correct horse",
		DeviceIdentifier: "dev-1",
		RememberToken:    done.RememberToken,
	})
	if err != nil {
		t.Fatalf("remembered SignIn failed: %v", err)
	}
	if again.AuthMethod != jwt.AuthTwoFactor || again.NewDevice {
		t.Fatalf("expected two-factor token on known device, got %q new=%v", again.AuthMethod, again.NewDevice)
	}

	other, err := te.SignIn(ctx, SignInRequest{
		Identifier:       "alice@example.com",
		Password:         "correct horse",
		DeviceIdentifier: "dev-2",
		RememberToken:    done.RememberToken,
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !other.Pending() {
		t.Fatalf("remember token must be bound to its device")
	}
	if got := te.Metrics().Value(MetricRememberUsed); got != 1 {
		t.Fatalf("expected 1 remember use, got %d", got)
	}
}

func TestValidateFactorConfiguration(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(alice()))
	ctx := context.Background()

	err := te.ValidateFactorConfiguration(ctx, Record{
		Kind:    factor.KindAuthenticator,
		Enabled: true,
		Payload: factor.AuthenticatorPayload{Secret: testSecret},
	})
	if err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}

	err = te.ValidateFactorConfiguration(ctx, Record{
		Kind:    factor.KindAuthenticator,
		Payload: factor.AuthenticatorPayload{Secret: "!!not-base32!!"},
	})
	if !errors.Is(err, ErrConfigurationInvalid) {
		t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
	}

	err = te.ValidateFactorConfiguration(ctx, Record{
		Kind:    factor.KindAuthenticator,
		Payload: factor.OTPIdentifierSet{IDs: []string{"cccccccccccb"}},
	})
	if !errors.Is(err, ErrConfigurationInvalid) {
		t.Fatalf("expected mismatched payload to be rejected, got %v", err)
	}

	err = te.ValidateFactorConfiguration(ctx, Record{Kind: factor.KindYubiKey, Payload: factor.OTPIdentifierSet{}})
	if !errors.Is(err, ErrFactorNotConfigured) {
		t.Fatalf("expected ErrFactorNotConfigured, got %v", err)
	}
}

func TestAuditEventsCarryClientIP(t *testing.T) {
	te := newTestEngine(t, testConfig(), newMemPrincipals(alice()))
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	if _, err := te.SignIn(ctx, SignInRequest{Identifier: "alice@example.com", Password: "nope"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	events := te.drainAudit()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventType != auditEventSignInFailure || ev.IP != "203.0.113.7" || ev.PrincipalID != "p-alice" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Error != string(auditErrInvalidCredential) || ev.Metadata["reason"] != "password_mismatch" {
		t.Fatalf("unexpected classification: %+v", ev)
	}
}

func TestBuilderRejectsReuseAndMissingDeps(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).WithPrincipalProvider(newMemPrincipals()).WithPasswordVerifier(&plainPasswords{}).Build(); err == nil {
		t.Fatalf("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithPasswordVerifier(&plainPasswords{}).Build(); err == nil {
		t.Fatalf("expected error without principal provider")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithPrincipalProvider(newMemPrincipals()).Build(); err == nil {
		t.Fatalf("expected error without password verifier")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithPrincipalProvider(newMemPrincipals()).WithPasswordVerifier(&plainPasswords{}).WithLogger(zap.NewNop())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}

	kinds := e.Kinds()
	if len(kinds) != 2 || kinds[0] != factor.KindAuthenticator || kinds[1] != factor.KindRemember {
		t.Fatalf("unexpected default kinds: %v", kinds)
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.SignIn(context.Background(), SignInRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.VerifyFactor(context.Background(), VerifyFactorRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}
