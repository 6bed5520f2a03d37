package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const (
	// ChallengeSize is the number of random bytes in a public-key assertion
	// challenge.
	ChallengeSize = 32

	nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var errInvalidChallenge = errors.New("invalid challenge encoding")

// NewChallenge returns ChallengeSize random bytes encoded base64url without
// padding.
func NewChallenge() (string, error) {
	var raw [ChallengeSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeChallenge reverses NewChallenge. Inputs of any other length fail.
func DecodeChallenge(s string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ChallengeSize {
		return nil, errInvalidChallenge
	}
	return raw, nil
}

// NewNonce returns an alphanumeric nonce of n characters. Remote OTP
// validation servers accept 16 to 40.
func NewNonce(n int) (string, error) {
	if n < 16 || n > 40 {
		return "", errors.New("invalid nonce length")
	}

	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(nonceAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
