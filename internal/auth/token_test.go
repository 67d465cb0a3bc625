package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyToken(t *testing.T) {
	hash, err := HashToken("super-secret")
	if err != nil {
		t.Fatalf("HashToken returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2$sha256$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if err := VerifyToken(hash, "super-secret"); err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}
	if err := VerifyToken(hash, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenUsesUniqueSalt(t *testing.T) {
	first, err := HashToken("repeat")
	if err != nil {
		t.Fatalf("HashToken returned error: %v", err)
	}
	second, err := HashToken("repeat")
	if err != nil {
		t.Fatalf("HashToken returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected different salts to produce different hashes")
	}
}

func TestHashTokenRequiresValue(t *testing.T) {
	if _, err := HashToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestVerifyTokenRejectsMalformedHashes(t *testing.T) {
	cases := []string{
		"",
		"pbkdf2$sha256$notanumber$c2FsdA$a2V5",
		"bcrypt$sha256$1000$c2FsdA$a2V5",
		"pbkdf2$sha256$1000$!!$a2V5",
		"pbkdf2$sha256$1000$c2FsdA",
	}
	for _, encoded := range cases {
		if err := VerifyToken(encoded, "anything"); err == nil {
			t.Errorf("expected error for hash %q", encoded)
		}
	}
}
