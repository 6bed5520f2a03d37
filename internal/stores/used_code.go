package stores

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsedCodeStore remembers which time steps a principal has already spent.
type UsedCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewUsedCodeStore(redisClient redis.UniversalClient, prefix string) *UsedCodeStore {
	if prefix == "" {
		prefix = "aotp"
	}
	return &UsedCodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// MarkUsed records step for principalID. It returns false when the step was
// already recorded.
func (s *UsedCodeStore) MarkUsed(ctx context.Context, principalID string, step int64, ttl time.Duration) (bool, error) {
	key := s.prefix + ":" + principalID + ":" + strconv.FormatInt(step, 10)
	ok, err := s.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return ok, nil
}
