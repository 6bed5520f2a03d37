package factor

import "context"

// Provider is implemented once per [Kind].
//
// CanGenerate must not perform I/O: it inspects the payload only, so a backend
// outage can never hide an enrolled factor. Validate is the sole authority on
// a proof; a false result is a rejection whatever error accompanies it, and
// the error is diagnostic only.
type Provider interface {
	Kind() Kind
	CanGenerate(p *Principal) bool
	Generate(ctx context.Context, purpose Purpose, p *Principal) (*Challenge, error)
	Validate(ctx context.Context, purpose Purpose, proof string, p *Principal) (bool, error)
}

// Configurable is implemented by providers that can check a payload when it
// is configured rather than on first sign-in. Errors wrap ErrConfigurationInvalid.
type Configurable interface {
	ValidateConfiguration(ctx context.Context, rec Record) error
}

// Challenge is what the caller relays to the client after Generate.
type Challenge struct {
	Kind Kind `json:"kind"`
	// Handle is an opaque reference, e.g. a Duo transaction id.
	Handle string `json:"handle,omitempty"`
	// SignedRequest is a Duo Web sig_request.
	SignedRequest string            `json:"signedRequest,omitempty"`
	Host          string            `json:"host,omitempty"`
	Assertion     *AssertionOptions `json:"assertion,omitempty"`
	NFC           bool              `json:"nfc,omitempty"`
}

// AssertionOptions is the WebAuthn PublicKeyCredentialRequestOptions shape.
type AssertionOptions struct {
	Challenge        string                 `json:"challenge"`
	Timeout          int64                  `json:"timeout,omitempty"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification,omitempty"`
	Extensions       *AssertionExtensions   `json:"extensions,omitempty"`
}

// CredentialDescriptor names one allowed credential, base64url encoded.
type CredentialDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AssertionExtensions carries the legacy U2F application id.
type AssertionExtensions struct {
	AppID string `json:"appid,omitempty"`
}

type deviceContextKey struct{}

// WithDevice attaches the client device identifier to ctx. The remembered
// device factor binds its tokens to this value.
func WithDevice(ctx context.Context, deviceIdentifier string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, deviceIdentifier)
}

// DeviceFromContext returns the device identifier attached by WithDevice.
func DeviceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(deviceContextKey{}).(string)
	return v
}
