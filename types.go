package goFactor

import (
	"context"
	"time"

	"github.com/MrEthical07/goFactor/devices"
	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/jwt"
)

// PrincipalProvider loads principals from the caller's persistence layer.
// Both methods return (nil, nil) or an error when no principal exists.
type PrincipalProvider interface {
	GetPrincipalByIdentifier(ctx context.Context, identifier string) (*factor.Principal, error)
	GetPrincipalByID(ctx context.Context, id string) (*factor.Principal, error)
}

// PasswordVerifier checks a sign-in password. It is called with a nil
// principal for unknown identifiers and should spend the same work as for a
// wrong password. password.Argon2Verifier is the default implementation.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, p *factor.Principal, password string) (bool, error)
}

// DeviceStore is implemented by devices.RedisStore, devices.MemoryStore and
// pgstore.Store.
type DeviceStore = devices.Store

// SignInRequest is the first phase of a sign-in.
type SignInRequest struct {
	Identifier       string
	Password         string
	DeviceIdentifier string
	DeviceName       string
	// Factor selects the challenge to issue when more than one factor is
	// offered. Nil picks the highest-priority offered kind.
	Factor  *factor.Kind
	Purpose factor.Purpose
	// RememberToken from an earlier sign-in on this device satisfies the
	// second factor in this request.
	RememberToken string
}

// VerifyFactorRequest completes a two-factor-pending sign-in.
type VerifyFactorRequest struct {
	ChallengeToken   string
	Kind             factor.Kind
	Purpose          factor.Purpose
	Proof            string
	DeviceIdentifier string
	DeviceName       string
	// Remember mints a remembered-device token for DeviceIdentifier.
	Remember bool
}

// FactorOption is one factor the caller may offer to the client.
type FactorOption struct {
	Kind factor.Kind `json:"kind"`
	Name string      `json:"name"`
}

// SignInResult is returned for every accepted request. When AuthMethod is
// jwt.AuthTwoFactorPending, Token is a challenge token that carries no
// authorization and must be passed back to VerifyFactor.
type SignInResult struct {
	AuthMethod    jwt.AuthMethod    `json:"authMethod"`
	Token         string            `json:"token"`
	ExpiresAt     time.Time         `json:"expiresAt"`
	Factors       []FactorOption    `json:"factors,omitempty"`
	Challenge     *factor.Challenge `json:"challenge,omitempty"`
	RememberToken string            `json:"rememberToken,omitempty"`
	Device        *devices.Device   `json:"device,omitempty"`
	NewDevice     bool              `json:"newDevice,omitempty"`
}

// Pending reports whether a second factor is still required.
func (r *SignInResult) Pending() bool {
	return r != nil && r.AuthMethod == jwt.AuthTwoFactorPending
}
