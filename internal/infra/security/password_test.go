package security

import (
	"strings"
	"testing"

	"github.com/avalon-platform/identity-service/internal/core/domain"
)

func TestPasswordPolicyLength(t *testing.T) {
	policy := NewPasswordPolicy(12, 1)

	err := policy.Validate("short")
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "12 characters") {
		t.Fatalf("error must name the minimum length, got %q", err.Error())
	}
}

func TestPasswordPolicyStrength(t *testing.T) {
	policy := NewPasswordPolicy(8, 3)

	if err := policy.Validate("password123"); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("dictionary password must fail, got %v", err)
	}
	if err := policy.Validate("q7#Vel0city!Marsh-82"); err != nil {
		t.Fatalf("strong password must pass, got %v", err)
	}
}

func TestPasswordPolicyUserInputs(t *testing.T) {
	policy := NewPasswordPolicy(8, 3)

	// The user's own identifiers count as guessable inputs.
	err := policy.Validate("annika.svensson", "annika.svensson", "annika@example.com")
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("password matching the username must fail, got %v", err)
	}
}

func TestPasswordPolicyDefaults(t *testing.T) {
	policy := NewPasswordPolicy(0, 0)
	if policy.minLength != 10 || policy.minScore != 3 {
		t.Fatalf("expected fallback defaults, got length=%d score=%d", policy.minLength, policy.minScore)
	}

	policy = NewPasswordPolicy(8, 9)
	if policy.minScore != 3 {
		t.Fatalf("out-of-range score must fall back, got %d", policy.minScore)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := HashPassword("q7#Vel0city!Marsh-82")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "argon2id$") {
		t.Fatalf("expected argon2id encoding, got %q", encoded)
	}

	ok, err := VerifyPassword("q7#Vel0city!Marsh-82", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if !ok {
		t.Fatal("correct password must verify")
	}

	ok, err = VerifyPassword("wrong-password-entirely", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	first, err := HashPassword("q7#Vel0city!Marsh-82")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	second, err := HashPassword("q7#Vel0city!Marsh-82")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if first == second {
		t.Fatal("hashes must differ across calls")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"argon2id$v=19$m=65536,t=3,p=4$not-base64!$aGFzaA",
	} {
		if _, err := VerifyPassword("anything", encoded); err == nil {
			t.Errorf("malformed hash %q must error", encoded)
		}
	}
}
