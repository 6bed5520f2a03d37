package webauthn

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goFactor/factor"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	// rpIdHash(32) | flags(1) | signCount(4)
	minAuthDataLen = 37
	legacyKeyLen   = 65
)

// assertionJSON is the PublicKeyCredential shape returned by
// navigator.credentials.get, with binary members base64url encoded.
type assertionJSON struct {
	ID       string `json:"id"`
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		AuthenticatorData string `json:"authenticatorData"`
		ClientDataJSON    string `json:"clientDataJSON"`
		Signature         string `json:"signature"`
		UserHandle        string `json:"userHandle,omitempty"`
	} `json:"response"`
	Extensions struct {
		AppID bool `json:"appid"`
	} `json:"clientExtensionResults"`
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

type assertion struct {
	credentialID      []byte
	authenticatorData []byte
	clientDataJSON    []byte
	signature         []byte
	clientData        clientData
}

func parseAssertion(proof string) (*assertion, error) {
	var raw assertionJSON
	if err := json.Unmarshal([]byte(proof), &raw); err != nil {
		return nil, fmt.Errorf("malformed assertion: %w", err)
	}
	if raw.Type != credentialType {
		return nil, fmt.Errorf("unexpected credential type %q", raw.Type)
	}

	id := raw.RawID
	if id == "" {
		id = raw.ID
	}
	var (
		a   assertion
		err error
	)
	if a.credentialID, err = decodeB64(id); err != nil || len(a.credentialID) == 0 {
		return nil, errors.New("invalid credential id")
	}
	if a.authenticatorData, err = decodeB64(raw.Response.AuthenticatorData); err != nil {
		return nil, errors.New("invalid authenticator data encoding")
	}
	if a.clientDataJSON, err = decodeB64(raw.Response.ClientDataJSON); err != nil {
		return nil, errors.New("invalid client data encoding")
	}
	if a.signature, err = decodeB64(raw.Response.Signature); err != nil || len(a.signature) == 0 {
		return nil, errors.New("invalid signature encoding")
	}
	if err := json.Unmarshal(a.clientDataJSON, &a.clientData); err != nil {
		return nil, fmt.Errorf("malformed client data: %w", err)
	}
	if a.clientData.Challenge == "" {
		return nil, errors.New("client data carries no challenge")
	}
	return &a, nil
}

type authenticatorData struct {
	rpIDHash []byte
	flags    byte
	counter  uint32
}

func parseAuthenticatorData(b []byte) (authenticatorData, error) {
	if len(b) < minAuthDataLen {
		return authenticatorData{}, errors.New("authenticator data too short")
	}
	return authenticatorData{
		rpIDHash: b[:32],
		flags:    b[32],
		counter:  binary.BigEndian.Uint32(b[33:37]),
	}, nil
}

func (d authenticatorData) check(rpID string, requireVerified bool) error {
	if rpID == "" {
		return errors.New("relying party id not configured")
	}
	want := sha256.Sum256([]byte(rpID))
	if subtle.ConstantTimeCompare(want[:], d.rpIDHash) != 1 {
		return errors.New("relying party id hash mismatch")
	}
	if d.flags&flagUserPresent == 0 {
		return errors.New("user not present")
	}
	if requireVerified && d.flags&flagUserVerified == 0 {
		return errors.New("user not verified")
	}
	return nil
}

// verifySignature checks sig over authData || sha256(clientDataJSON). Legacy
// U2F assertions are reshaped the same way by the client, so one message
// layout serves both.
func verifySignature(cred factor.PublicKeyCredential, authData, clientDataJSON, sig []byte) error {
	key, err := parsePublicKey(cred)
	if err != nil {
		return err
	}

	clientHash := sha256.Sum256(clientDataJSON)
	msg := make([]byte, 0, len(authData)+len(clientHash))
	msg = append(msg, authData...)
	msg = append(msg, clientHash[:]...)

	switch k := key.(type) {
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(msg)
		if !ecdsa.VerifyASN1(k, digest[:], sig) {
			return errors.New("ecdsa signature invalid")
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(k, msg, sig) {
			return errors.New("ed25519 signature invalid")
		}
	case *rsa.PublicKey:
		digest := sha256.Sum256(msg)
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig); err != nil {
			return errors.New("rsa signature invalid")
		}
	default:
		return fmt.Errorf("unsupported key type %T", key)
	}
	return nil
}

func parsePublicKey(c factor.PublicKeyCredential) (crypto.PublicKey, error) {
	if c.Legacy {
		raw := c.PublicKey
		if len(raw) != legacyKeyLen {
			return nil, fmt.Errorf("legacy key must be %d bytes", legacyKeyLen)
		}
		return ecdsa.ParseUncompressedPublicKey(elliptic.P256(), raw)
	}

	key, err := x509.ParsePKIXPublicKey(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	switch k := key.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey, *rsa.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
}

func decodeB64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}
