// Package devices records the client devices that completed a full sign-in.
//
// A device is created only after every required factor was proven, never
// after a password alone. Three stores are provided: Redis for shared
// deployments, an in-process cache for single-node and test use, and
// Postgres under pgstore for durable history.
package devices

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("device not found")
	ErrInvalid  = errors.New("device requires principal and identifier")
	ErrBackend  = errors.New("device backend unavailable")
)

// MaxNameLength bounds the caller-supplied display name.
const MaxNameLength = 128

// Device is a client device bound to one principal.
type Device struct {
	ID           string    `json:"id"`
	PrincipalID  string    `json:"principalId"`
	Identifier   string    `json:"identifier"`
	Name         string    `json:"name,omitempty"`
	TrustedSince time.Time `json:"trustedSince"`
}

// Store persists device records.
type Store interface {
	// Find returns ErrNotFound when the principal has no device with identifier.
	Find(ctx context.Context, principalID, identifier string) (*Device, error)
	Save(ctx context.Context, d *Device) error
}

// New builds a device record with a fresh id.
func New(principalID, identifier, name string, now time.Time) (*Device, error) {
	principalID = strings.TrimSpace(principalID)
	identifier = strings.TrimSpace(identifier)
	if principalID == "" || identifier == "" {
		return nil, ErrInvalid
	}
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	return &Device{
		ID:           uuid.NewString(),
		PrincipalID:  principalID,
		Identifier:   identifier,
		Name:         name,
		TrustedSince: now.UTC(),
	}, nil
}

func validate(d *Device) error {
	if d == nil || d.PrincipalID == "" || d.Identifier == "" {
		return ErrInvalid
	}
	return nil
}
