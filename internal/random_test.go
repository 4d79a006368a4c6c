package internal

import (
	"math/big"
	"testing"
)

func TestNewNonceIsDecimalAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		nonce, err := NewNonce(MinNonceSize)
		if err != nil {
			t.Fatalf("new nonce: %v", err)
		}
		n, ok := new(big.Int).SetString(nonce, 10)
		if !ok {
			t.Fatalf("nonce %q is not a decimal integer", nonce)
		}
		if n.Sign() < 0 {
			t.Fatalf("nonce %q is negative", nonce)
		}
		if n.BitLen() > MinNonceSize*8 {
			t.Fatalf("nonce %q exceeds %d bits", nonce, MinNonceSize*8)
		}
		if n.String() != nonce {
			t.Fatalf("nonce %q is not canonical", nonce)
		}
		if _, dup := seen[nonce]; dup {
			t.Fatalf("duplicate nonce %q", nonce)
		}
		seen[nonce] = struct{}{}
	}
}

func TestNewNonceRejectsSmallSize(t *testing.T) {
	if _, err := NewNonce(MinNonceSize - 1); err == nil {
		t.Fatal("expected error for undersized nonce")
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("parse session id: %v", err)
	}
	if parsed != sid {
		t.Fatalf("expected %v, got %v", sid, parsed)
	}
	if _, err := ParseSessionID("c2hvcnQ"); err == nil {
		t.Fatal("expected error for short session id")
	}
}

func TestParseSessionIDRejectsNonCanonical(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	text := sid.String()
	for _, in := range []string{text + "=", text[:len(text)-1], "+" + text[1:], "planted"} {
		if _, err := ParseSessionID(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
