package factor

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a payload for storage. It is meant for the
// persistence boundary only.
func EncodePayload(kind Kind, payload Payload) ([]byte, error) {
	if !Fits(kind, payload) {
		return nil, fmt.Errorf("%w: payload does not match kind %s", ErrConfigurationInvalid, kind)
	}
	return json.Marshal(payload)
}

// DecodePayload parses a stored payload for kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	var (
		out Payload
		err error
	)
	switch kind {
	case KindAuthenticator:
		var p AuthenticatorPayload
		err = json.Unmarshal(data, &p)
		out = p
	case KindDuo:
		var p PushPayload
		err = json.Unmarshal(data, &p)
		out = p
	case KindDuoLegacy, KindOrganizationDuo:
		var p SignedChallengePayload
		err = json.Unmarshal(data, &p)
		out = p
	case KindWebAuthn:
		var p PublicKeyCredentialSet
		err = json.Unmarshal(data, &p)
		out = p
	case KindYubiKey:
		var p OTPIdentifierSet
		err = json.Unmarshal(data, &p)
		out = p
	default:
		return nil, fmt.Errorf("%w: kind %s has no payload", ErrConfigurationInvalid, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationInvalid, err)
	}
	return out, nil
}

// Fits reports whether payload is the payload type for kind.
func Fits(kind Kind, payload Payload) bool {
	if payload == nil {
		return false
	}
	switch kind {
	case KindOrganizationDuo, KindDuoLegacy:
		_, ok := payload.(SignedChallengePayload)
		return ok
	default:
		return payload.payloadKind() == kind
	}
}
