package stores

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCounterNotIncreasing  = errors.New("signature counter not increasing")
	ErrCredentialCompromised = errors.New("credential flagged compromised")
	ErrCounterContention     = errors.New("signature counter update contended")
)

// CredentialCounterStore holds the authoritative signature counter per
// (principal, credential). The enrolled payload counter is only a baseline
// for credentials that have never been used through this store.
type CredentialCounterStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCredentialCounterStore(redisClient redis.UniversalClient, prefix string) *CredentialCounterStore {
	if prefix == "" {
		prefix = "apk"
	}
	return &CredentialCounterStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CredentialCounterStore) key(principalID string, credentialID []byte) string {
	return s.prefix + ":" + principalID + ":" + base64.RawURLEncoding.EncodeToString(credentialID)
}

func (s *CredentialCounterStore) flagKey(principalID string, credentialID []byte) string {
	return s.key(principalID, credentialID) + ":x"
}

// Advance stores presented as the new counter if and only if it is strictly
// greater than max(baseline, stored). A non-increasing value flags the
// credential compromised in the same transaction and returns
// ErrCounterNotIncreasing.
func (s *CredentialCounterStore) Advance(
	ctx context.Context,
	principalID string,
	credentialID []byte,
	baseline uint32,
	presented uint32,
) error {
	const maxRetries = 4
	key := s.key(principalID, credentialID)
	flag := s.flagKey(principalID, credentialID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			flagged, err := tx.Exists(ctx, flag).Result()
			if err != nil {
				return err
			}
			if flagged > 0 {
				return ErrCredentialCompromised
			}

			current := baseline
			stored, err := tx.Get(ctx, key).Uint64()
			switch {
			case err == nil:
				if uint32(stored) > current {
					current = uint32(stored)
				}
			case errors.Is(err, redis.Nil):
			default:
				return err
			}

			if presented <= current {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, flag, "1", 0)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCounterNotIncreasing
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, strconv.FormatUint(uint64(presented), 10), 0)
				return nil
			})
			return err
		}, key, flag)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrCounterNotIncreasing) || errors.Is(err, ErrCredentialCompromised) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrBackend, err)
		}
		return nil
	}

	return ErrCounterContention
}

// Current returns the stored counter, if any.
func (s *CredentialCounterStore) Current(ctx context.Context, principalID string, credentialID []byte) (uint32, bool, error) {
	v, err := s.redis.Get(ctx, s.key(principalID, credentialID)).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return uint32(v), true, nil
}

// Compromise flags a credential so it is never offered or accepted again.
func (s *CredentialCounterStore) Compromise(ctx context.Context, principalID string, credentialID []byte) error {
	if err := s.redis.Set(ctx, s.flagKey(principalID, credentialID), "1", 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Compromised reports which of credentialIDs are flagged, keyed by the
// base64url credential id.
func (s *CredentialCounterStore) Compromised(ctx context.Context, principalID string, credentialIDs [][]byte) (map[string]bool, error) {
	out := make(map[string]bool, len(credentialIDs))
	if len(credentialIDs) == 0 {
		return out, nil
	}
	cmds := make([]*redis.IntCmd, len(credentialIDs))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range credentialIDs {
			cmds[i] = pipe.Exists(ctx, s.flagKey(principalID, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	for i, id := range credentialIDs {
		if cmds[i].Val() > 0 {
			out[base64.RawURLEncoding.EncodeToString(id)] = true
		}
	}
	return out, nil
}
