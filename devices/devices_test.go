package devices

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewValidatesAndTrims(t *testing.T) {
	_, err := New("", "dev", "", time.Now())
	require.ErrorIs(t, err, ErrInvalid)
	_, err = New("p1", "  ", "", time.Now())
	require.ErrorIs(t, err, ErrInvalid)

	d, err := New(" p1 ", "dev-1", strings.Repeat("x", 300), time.Now())
	require.NoError(t, err)
	require.Equal(t, "p1", d.PrincipalID)
	require.Len(t, d.Name, MaxNameLength)
	require.NotEmpty(t, d.ID)
	require.Equal(t, time.UTC, d.TrustedSince.Location())
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Find(ctx, "p1", "dev-1")
	require.ErrorIs(t, err, ErrNotFound)

	d, err := New("p1", "dev-1", "phone", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, d))

	got, err := store.Find(ctx, "p1", "dev-1")
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.Equal(t, "phone", got.Name)

	_, err = store.Find(ctx, "p2", "dev-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store.Save(ctx, &Device{PrincipalID: "p1"}), ErrInvalid)
}

func TestRedisStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseStore(t, NewRedisStore(rdb, "", 0))
}

func TestRedisStoreTTLAndBackendError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "dev", time.Hour)
	ctx := context.Background()

	d, _ := New("p1", "dev-1", "", time.Now())
	require.NoError(t, store.Save(ctx, d))
	mr.FastForward(2 * time.Hour)
	_, err := store.Find(ctx, "p1", "dev-1")
	require.ErrorIs(t, err, ErrNotFound)

	_ = rdb.Close()
	_, err = store.Find(ctx, "p1", "dev-1")
	require.ErrorIs(t, err, ErrBackend)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	exerciseStore(t, store)
	require.Equal(t, 1, store.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	d, _ := New("p1", "dev-1", "a", time.Now())
	require.NoError(t, store.Save(ctx, d))

	got, err := store.Find(ctx, "p1", "dev-1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := store.Find(ctx, "p1", "dev-1")
	require.NoError(t, err)
	require.Equal(t, "a", again.Name)
}
