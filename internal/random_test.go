package internal

import (
	"strings"
	"testing"
)

func TestActionTokenRoundTrip(t *testing.T) {
	id, err := NewActionID()
	if err != nil {
		t.Fatalf("NewActionID failed: %v", err)
	}
	secret, err := NewActionSecret()
	if err != nil {
		t.Fatalf("NewActionSecret failed: %v", err)
	}

	encoded := EncodeActionToken(id, secret)

	gotID, gotSecret, err := DecodeActionToken(encoded)
	if err != nil {
		t.Fatalf("DecodeActionToken failed: %v", err)
	}
	if gotID != id {
		t.Fatal("id roundtrip mismatch")
	}
	if gotSecret != secret {
		t.Fatal("secret roundtrip mismatch")
	}
}

func TestDecodeActionTokenRejectsBadInput(t *testing.T) {
	for _, raw := range []string{
		"",
		"ab",
		"not base64 at all!!",
		strings.Repeat("A", 100),
	} {
		if _, _, err := DecodeActionToken(raw); err == nil {
			t.Fatalf("DecodeActionToken accepted %q", raw)
		}
	}
}

func TestActionIDStringRoundTrip(t *testing.T) {
	id, err := NewActionID()
	if err != nil {
		t.Fatalf("NewActionID failed: %v", err)
	}

	parsed, err := ParseActionID(id.String())
	if err != nil {
		t.Fatalf("ParseActionID failed: %v", err)
	}
	if parsed != id {
		t.Fatal("id string roundtrip mismatch")
	}
}

func TestHashActionSecretDeterministic(t *testing.T) {
	secret, err := NewActionSecret()
	if err != nil {
		t.Fatalf("NewActionSecret failed: %v", err)
	}

	if HashActionSecret(secret) != HashActionBytes(secret[:]) {
		t.Fatal("hash helpers disagree for the same secret")
	}

	other, err := NewActionSecret()
	if err != nil {
		t.Fatalf("NewActionSecret failed: %v", err)
	}
	if HashActionSecret(secret) == HashActionSecret(other) {
		t.Fatal("distinct secrets hashed identically")
	}
}
