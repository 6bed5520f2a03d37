package main

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/factor/authenticator"
	"github.com/MrEthical07/goFactor/jwt"
)

type loadtestOptions struct {
	principals  int
	concurrency int
	ops         int
	redisAddr   string
}

func newLoadtestCmd(a *app) *cobra.Command {
	opts := loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive SignIn and VerifyFactor with authenticator codes and report latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.principals <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("principals, concurrency and ops must be > 0")
			}
			if opts.redisAddr == "" {
				opts.redisAddr = os.Getenv("REDIS_ADDR")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), a.cfg, opts)
		},
	}
	cmd.Flags().IntVar(&opts.principals, "principals", 1000, "number of principals to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 10000, "two-phase sign-ins to perform")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	return cmd
}

// seededPrincipals is a read-only PrincipalProvider for the load test.
type seededPrincipals struct {
	byID    map[string]*factor.Principal
	byEmail map[string]*factor.Principal
}

func (s *seededPrincipals) GetPrincipalByIdentifier(_ context.Context, identifier string) (*factor.Principal, error) {
	return s.byEmail[identifier], nil
}

func (s *seededPrincipals) GetPrincipalByID(_ context.Context, id string) (*factor.Principal, error) {
	return s.byID[id], nil
}

type fixedPassword string

func (f fixedPassword) VerifyPassword(_ context.Context, p *factor.Principal, pw string) (bool, error) {
	return p != nil && pw == string(f), nil
}

func seed(n int) (*seededPrincipals, []string, error) {
	s := &seededPrincipals{
		byID:    make(map[string]*factor.Principal, n),
		byEmail: make(map[string]*factor.Principal, n),
	}
	secrets := make([]string, n)
	for i := 0; i < n; i++ {
		raw := make([]byte, 20)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		secrets[i] = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
		p := &factor.Principal{
			ID:            fmt.Sprintf("p-%d", i),
			Email:         fmt.Sprintf("user%d@loadtest.local", i),
			SecurityStamp: "stamp",
			Factors: map[factor.Kind]factor.Record{
				factor.KindAuthenticator: {
					Kind:    factor.KindAuthenticator,
					Enabled: true,
					Payload: factor.AuthenticatorPayload{Secret: secrets[i]},
				},
			},
		}
		s.byID[p.ID] = p
		s.byEmail[p.Email] = p
	}
	return s, secrets, nil
}

func runLoadtest(ctx context.Context, out io.Writer, base goFactor.Config, opts loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var client redis.UniversalClient
	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	cfg := base
	if len(cfg.JWT.PrivateKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		cfg.JWT.SigningMethod = jwt.MethodHS256
		cfg.JWT.PrivateKey = key
	}
	cfg.SignIn.FailureDelay = 0
	// Codes repeat within a step across iterations of one principal.
	cfg.TOTP.EnforceReplayProtection = false
	cfg.Devices.Enabled = false
	cfg.Audit.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	principals, secrets, err := seed(opts.principals)
	if err != nil {
		return err
	}
	engine, err := goFactor.New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(principals).
		WithPasswordVerifier(fixedPassword("loadtest")).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := runSignInPhase(ctx, engine, secrets, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "signin+verify", stats)
	snap := engine.MetricsSnapshot()
	fmt.Fprintf(out, "factor_success=%d factor_failure=%d two_factor_required=%d\n",
		snap.Counters[goFactor.MetricFactorSuccess],
		snap.Counters[goFactor.MetricFactorFailure],
		snap.Counters[goFactor.MetricTwoFactorRequired],
	)
	return nil
}

func runSignInPhase(ctx context.Context, engine *goFactor.Engine, secrets []string, opts loadtestOptions) (phaseStats, error) {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, opts.ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= opts.ops {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				idx := i % len(secrets)

				t0 := time.Now()
				err := twoPhase(gctx, engine, idx, secrets[idx])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures), nil
}

func twoPhase(ctx context.Context, engine *goFactor.Engine, idx int, secret string) error {
	res, err := engine.SignIn(ctx, goFactor.SignInRequest{
		Identifier: fmt.Sprintf("user%d@loadtest.local", idx),
		Password:   "loadtest",
	})
	if err != nil {
		return err
	}
	code, err := authenticator.Code(secret, time.Now())
	if err != nil {
		return err
	}
	_, err = engine.VerifyFactor(ctx, goFactor.VerifyFactorRequest{
		ChallengeToken: res.Token,
		Kind:           factor.KindAuthenticator,
		Proof:          code,
	})
	return err
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
