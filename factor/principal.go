package factor

// Principal is the identity being authenticated. It is owned by the caller's
// persistence layer and treated as read-only by the coordinator.
type Principal struct {
	ID            string
	Email         string
	SecurityStamp string
	Factors       map[Kind]Record
	Organization  *Organization
}

// Organization carries organization-scoped factors that apply to every member.
type Organization struct {
	ID      string
	Use2FA  bool
	Factors map[Kind]Record
}

// Record is one enrolled factor.
type Record struct {
	Kind    Kind
	Enabled bool
	Payload Payload
}

// Payload is the closed set of per-kind enrollment data. Only types in this
// package implement it.
type Payload interface {
	payloadKind() Kind
}

// AuthenticatorPayload holds the base32 shared secret for time-based codes.
type AuthenticatorPayload struct {
	Secret string
}

// PushPayload holds Duo Auth API credentials. UserID is the Duo user id; when
// empty the principal's email is sent as the Duo username.
type PushPayload struct {
	Host           string
	IntegrationKey string
	SecretKey      string
	UserID         string
}

// SignedChallengePayload holds Duo Web integration credentials.
type SignedChallengePayload struct {
	Host           string
	IntegrationKey string
	SecretKey      string
}

// PublicKeyCredential is one registered WebAuthn or legacy U2F credential.
//
// PublicKey is a PKIX (SubjectPublicKeyInfo) DER key for WebAuthn credentials
// and a raw 65-byte uncompressed P-256 point for legacy credentials.
type PublicKeyCredential struct {
	ID          []byte
	PublicKey   []byte
	Counter     uint32
	Legacy      bool
	Compromised bool
	Name        string
}

// PublicKeyCredentialSet holds every registered credential for a principal.
type PublicKeyCredentialSet struct {
	Credentials []PublicKeyCredential
}

// Usable returns credentials that are not flagged compromised.
func (s PublicKeyCredentialSet) Usable() []PublicKeyCredential {
	out := make([]PublicKeyCredential, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		if c.Compromised || len(c.ID) == 0 || len(c.PublicKey) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// OTPIdentifierSet holds the 12-character public identifiers of enrolled
// YubiKeys.
type OTPIdentifierSet struct {
	IDs []string
	NFC bool
}

func (AuthenticatorPayload) payloadKind() Kind   { return KindAuthenticator }
func (PushPayload) payloadKind() Kind            { return KindDuo }
func (SignedChallengePayload) payloadKind() Kind { return KindDuoLegacy }
func (PublicKeyCredentialSet) payloadKind() Kind { return KindWebAuthn }
func (OTPIdentifierSet) payloadKind() Kind       { return KindYubiKey }

// EnabledRecord returns the principal's own record for kind when it is enabled.
func (p *Principal) EnabledRecord(kind Kind) (Record, bool) {
	if p == nil || p.Factors == nil {
		return Record{}, false
	}
	rec, ok := p.Factors[kind]
	if !ok || !rec.Enabled || rec.Payload == nil {
		return Record{}, false
	}
	return rec, true
}

// OrganizationRecord returns the organization record for kind when the
// organization enforces two-factor and the record is enabled.
func (p *Principal) OrganizationRecord(kind Kind) (Record, bool) {
	if p == nil || p.Organization == nil || !p.Organization.Use2FA || p.Organization.Factors == nil {
		return Record{}, false
	}
	rec, ok := p.Organization.Factors[kind]
	if !ok || !rec.Enabled || rec.Payload == nil {
		return Record{}, false
	}
	return rec, true
}
