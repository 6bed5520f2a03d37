package password

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goFactor/factor"
)

// ErrHashNotFound is returned by a HashStore that has no hash for a principal.
var ErrHashNotFound = errors.New("password hash not found")

// HashStore looks up the PHC hash stored for a principal.
type HashStore interface {
	PasswordHash(ctx context.Context, principalID string) (string, error)
}

// HashUpdater is optionally implemented by a HashStore. When present, a
// successful verification against a hash with weaker parameters re-hashes
// the password and stores the result.
type HashUpdater interface {
	UpdatePasswordHash(ctx context.Context, principalID, hash string) error
}

// Argon2Verifier verifies sign-in passwords against stored argon2id hashes.
type Argon2Verifier struct {
	hasher *Argon2
	store  HashStore
	// dummy is verified when no hash exists so a missing principal costs the
	// same as a wrong password.
	dummy string
}

func NewArgon2Verifier(hasher *Argon2, store HashStore) (*Argon2Verifier, error) {
	if hasher == nil || store == nil {
		return nil, errors.New("argon2 verifier requires hasher and hash store")
	}
	dummy, err := hasher.Hash("goFactor-unused-password")
	if err != nil {
		return nil, err
	}
	return &Argon2Verifier{hasher: hasher, store: store, dummy: dummy}, nil
}

// VerifyPassword reports whether password matches the principal's stored
// hash. A nil principal or missing hash is a mismatch, not an error.
func (v *Argon2Verifier) VerifyPassword(ctx context.Context, p *factor.Principal, password string) (bool, error) {
	if p == nil || p.ID == "" {
		_, _ = v.hasher.Verify(password, v.dummy)
		return false, nil
	}

	encoded, err := v.store.PasswordHash(ctx, p.ID)
	if err != nil {
		_, _ = v.hasher.Verify(password, v.dummy)
		if errors.Is(err, ErrHashNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("password hash lookup: %w", err)
	}

	ok, err := v.hasher.Verify(password, encoded)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return false, nil
		}
		return false, err
	}
	if !ok {
		return false, nil
	}

	if updater, isUpdater := v.store.(HashUpdater); isUpdater {
		if upgrade, err := v.hasher.NeedsUpgrade(encoded); err == nil && upgrade {
			if rehashed, err := v.hasher.Hash(password); err == nil {
				// The sign-in already succeeded; a failed upgrade is retried next time.
				_ = updater.UpdatePasswordHash(ctx, p.ID, rehashed)
			}
		}
	}
	return true, nil
}
