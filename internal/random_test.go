package internal

import "testing"

func TestChallengeRoundTrip(t *testing.T) {
	c, err := NewChallenge()
	if err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}
	raw, err := DecodeChallenge(c)
	if err != nil || len(raw) != ChallengeSize {
		t.Fatalf("DecodeChallenge: len=%d err=%v", len(raw), err)
	}

	other, _ := NewChallenge()
	if other == c {
		t.Fatal("expected distinct challenges")
	}
}

func TestNonceBounds(t *testing.T) {
	if _, err := NewNonce(15); err == nil {
		t.Fatal("expected error for short nonce")
	}
	if _, err := NewNonce(41); err == nil {
		t.Fatal("expected error for long nonce")
	}
	n, err := NewNonce(32)
	if err != nil || len(n) != 32 {
		t.Fatalf("unexpected nonce %q err=%v", n, err)
	}
}

// FuzzDecodeChallenge checks that arbitrary input never panics.
func FuzzDecodeChallenge(f *testing.F) {
	f.Add("")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if c, err := NewChallenge(); err == nil {
		f.Add(c)
	}

	f.Fuzz(func(t *testing.T, s string) {
		raw, err := DecodeChallenge(s)
		if err == nil && len(raw) != ChallengeSize {
			t.Fatalf("accepted challenge of size %d", len(raw))
		}
	})
}
