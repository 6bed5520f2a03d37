package devices

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON document per (principal, identifier).
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store under prefix (default "adv"). A zero ttl keeps
// records until they are overwritten.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "adv"
	}
	return &RedisStore{redis: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(principalID, identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return s.prefix + ":" + principalID + ":" + base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *RedisStore) Find(ctx context.Context, principalID, identifier string) (*Device, error) {
	if principalID == "" || identifier == "" {
		return nil, ErrNotFound
	}
	data, err := s.redis.Get(ctx, s.key(principalID, identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	var d Device
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: corrupt device record: %v", ErrBackend, err)
	}
	return &d, nil
}

func (s *RedisStore) Save(ctx context.Context, d *Device) error {
	if err := validate(d); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(d.PrincipalID, d.Identifier), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
