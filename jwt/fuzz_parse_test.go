package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzParse exercises the token parser with arbitrary strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzParse(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		RequireIAT:    true,
		MaxFutureIAT:  10 * time.Minute,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}

	validToken, _, err := mgr.Issue(IssueParams{Subject: "p1", SecurityStamp: "s", AuthMethod: AuthTwoFactorPending})
	if err != nil {
		f.Fatal(err)
	}
	rememberToken, _, err := mgr.IssueRemember("p1", "s", "dev-1")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add(rememberToken)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJ1aWQiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err == nil && (claims == nil || !claims.AuthMethod.Valid()) {
			t.Fatal("Parse accepted a token without a valid auth method")
		}
		rc, err := mgr.ParseRemember(input)
		if err == nil && (rc == nil || rc.DeviceID == "") {
			t.Fatal("ParseRemember accepted a token without a device")
		}
	})
}
