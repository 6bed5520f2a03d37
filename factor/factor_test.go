package factor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKindByNameAndCode(t *testing.T) {
	k, ok := ParseKind("webauthn")
	require.True(t, ok)
	require.Equal(t, KindWebAuthn, k)

	k, ok = ParseKind("3")
	require.True(t, ok)
	require.Equal(t, KindYubiKey, k)

	_, ok = ParseKind("4")
	require.False(t, ok, "retired U2F code must not parse as a kind")
	_, ok = ParseKind("email")
	require.False(t, ok)
}

func TestPriorityExcludesRemember(t *testing.T) {
	for _, k := range Priority() {
		require.NotEqual(t, KindRemember, k)
	}
	require.Equal(t, KindWebAuthn, Priority()[0])
}

func TestFitsRejectsMismatchedPayload(t *testing.T) {
	require.True(t, Fits(KindAuthenticator, AuthenticatorPayload{Secret: "JBSWY3DPEHPK3PXP"}))
	require.True(t, Fits(KindOrganizationDuo, SignedChallengePayload{}))
	require.True(t, Fits(KindDuoLegacy, SignedChallengePayload{}))
	require.False(t, Fits(KindDuo, SignedChallengePayload{}))
	require.False(t, Fits(KindWebAuthn, nil))
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	_, err := DecodePayload(KindRemember, []byte(`{}`))
	require.True(t, errors.Is(err, ErrConfigurationInvalid))

	_, err = DecodePayload(KindYubiKey, []byte(`{"IDs":`))
	require.True(t, errors.Is(err, ErrConfigurationInvalid))
}

func TestDecodePayloadCredentialSet(t *testing.T) {
	encoded, err := EncodePayload(KindWebAuthn, PublicKeyCredentialSet{Credentials: []PublicKeyCredential{
		{ID: []byte{1, 2}, PublicKey: []byte{3}, Counter: 5, Legacy: true},
	}})
	require.NoError(t, err)

	decoded, err := DecodePayload(KindWebAuthn, encoded)
	require.NoError(t, err)
	set, ok := decoded.(PublicKeyCredentialSet)
	require.True(t, ok)
	require.Len(t, set.Credentials, 1)
	require.Equal(t, uint32(5), set.Credentials[0].Counter)
	require.True(t, set.Credentials[0].Legacy)

	_, err = EncodePayload(KindYubiKey, set)
	require.True(t, errors.Is(err, ErrConfigurationInvalid))
}

func TestUsableSkipsCompromisedAndIncomplete(t *testing.T) {
	set := PublicKeyCredentialSet{Credentials: []PublicKeyCredential{
		{ID: []byte("a"), PublicKey: []byte("k")},
		{ID: []byte("b"), PublicKey: []byte("k"), Compromised: true},
		{ID: []byte("c")},
	}}
	usable := set.Usable()
	require.Len(t, usable, 1)
	require.Equal(t, []byte("a"), usable[0].ID)
}

func TestOrganizationRecordRequiresUse2FA(t *testing.T) {
	p := &Principal{
		ID: "p1",
		Organization: &Organization{
			ID: "o1",
			Factors: map[Kind]Record{
				KindOrganizationDuo: {Kind: KindOrganizationDuo, Enabled: true, Payload: SignedChallengePayload{Host: "api-x.duosecurity.com"}},
			},
		},
	}
	_, ok := p.OrganizationRecord(KindOrganizationDuo)
	require.False(t, ok)

	p.Organization.Use2FA = true
	_, ok = p.OrganizationRecord(KindOrganizationDuo)
	require.True(t, ok)
}

func TestDeviceContextRoundTrip(t *testing.T) {
	require.Equal(t, "", DeviceFromContext(context.Background()))
	ctx := WithDevice(context.Background(), "device-1")
	require.Equal(t, "device-1", DeviceFromContext(ctx))
}
