package factor

import "strconv"

// Kind identifies one second-factor protocol. Values match the provider type
// codes already persisted by existing deployments and must not be renumbered.
type Kind uint8

const (
	// KindAuthenticator is a time-based one-time code from an authenticator app.
	KindAuthenticator Kind = 0
	// KindDuo is a Duo push, phone or passcode verification through the Auth API.
	KindDuo Kind = 2
	// KindYubiKey is a Yubico OTP validated against the Yubico web service.
	KindYubiKey Kind = 3
	// KindRemember is a remembered-device token issued after a full sign-in.
	KindRemember Kind = 5
	// KindOrganizationDuo is the organization-scoped Duo signed challenge.
	KindOrganizationDuo Kind = 6
	// KindWebAuthn covers WebAuthn credentials and migrated U2F credentials.
	KindWebAuthn Kind = 7
	// KindDuoLegacy is the principal-scoped Duo Web signed challenge.
	KindDuoLegacy Kind = 9
)

var kindNames = map[Kind]string{
	KindAuthenticator:   "authenticator",
	KindDuo:             "duo",
	KindYubiKey:         "yubikey",
	KindRemember:        "remember",
	KindOrganizationDuo: "organization_duo",
	KindWebAuthn:        "webauthn",
	KindDuoLegacy:       "duo_legacy",
}

// priority orders kinds when the coordinator picks a default challenge.
var priority = []Kind{
	KindWebAuthn,
	KindYubiKey,
	KindDuo,
	KindOrganizationDuo,
	KindDuoLegacy,
	KindAuthenticator,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind resolves a kind from its name or numeric code.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, false
	}
	k := Kind(n)
	return k, k.Valid()
}

// Priority returns the kinds in default challenge order. Remember is not
// included because it is never offered.
func Priority() []Kind {
	out := make([]Kind, len(priority))
	copy(out, priority)
	return out
}

// Purpose selects a sub-mode within one kind.
type Purpose string

const (
	PurposeDefault  Purpose = ""
	PurposePush     Purpose = "push"
	PurposePasscode Purpose = "passcode"
	PurposeSMS      Purpose = "sms"
	PurposePhone    Purpose = "phone"
)
