package goFactor

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/MrEthical07/goFactor/internal/logging"
	"github.com/MrEthical07/goFactor/jwt"
)

// AuthorizeMode selects how much Authorize checks beyond the signature.
type AuthorizeMode int

const (
	// AuthorizeTokenOnly verifies the token alone, with no principal lookup.
	AuthorizeTokenOnly AuthorizeMode = iota
	// AuthorizeStrict also reloads the principal and compares its current
	// security stamp, so a rotated stamp revokes the token immediately.
	AuthorizeStrict
)

// Authorize checks a token presented to a protected resource. Two-factor
// pending tokens never authorize anything. requireTwoFactor additionally
// refuses primary tokens.
func (e *Engine) Authorize(ctx context.Context, token string, mode AuthorizeMode, requireTwoFactor bool) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	switch claims.AuthMethod {
	case jwt.AuthTwoFactor:
	case jwt.AuthPrimary:
		if requireTwoFactor {
			return nil, fmt.Errorf("%w: second factor required", ErrUnauthorized)
		}
	default:
		return nil, fmt.Errorf("%w: %s token", ErrUnauthorized, claims.AuthMethod)
	}

	if mode != AuthorizeStrict {
		return claims, nil
	}

	principal, err := e.principals.GetPrincipalByID(ctx, claims.Subject)
	if err != nil {
		logging.From(ctx, e.logger).Warn("principal lookup failed",
			logging.Op("authorize"), logging.PrincipalID(claims.Subject), logging.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if principal == nil {
		return nil, fmt.Errorf("%w: unknown principal", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(claims.SecurityStamp), []byte(principal.SecurityStamp)) != 1 {
		e.metrics.Inc(MetricStampMismatch)
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, ErrStampMismatch)
	}
	return claims, nil
}
