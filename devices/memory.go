package devices

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store. Records are lost on restart.
type MemoryStore struct{ c *gocache.Cache }

// NewMemoryStore keeps records for ttl; zero means no expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{c: gocache.New(ttl, time.Minute)}
}

func memoryKey(principalID, identifier string) string {
	return principalID + "\x00" + identifier
}

func (m *MemoryStore) Find(_ context.Context, principalID, identifier string) (*Device, error) {
	v, ok := m.c.Get(memoryKey(principalID, identifier))
	if !ok {
		return nil, ErrNotFound
	}
	d, ok := v.(Device)
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) Save(_ context.Context, d *Device) error {
	if err := validate(d); err != nil {
		return err
	}
	m.c.SetDefault(memoryKey(d.PrincipalID, d.Identifier), *d)
	return nil
}

// Len returns the number of live records.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }
