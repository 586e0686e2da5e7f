package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Str0ngP@ssw0rd!", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword(hash, "Str0ngP@ssw0rd!")
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(correct) = %v, %v", ok, err)
	}

	ok, err = VerifyPassword(hash, "wrong")
	if err != nil || ok {
		t.Fatalf("VerifyPassword(wrong) = %v, %v", ok, err)
	}

	if _, err := VerifyPassword("not-a-hash", "x"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

func TestValidateTOTP(t *testing.T) {
	key, err := GenerateTOTPSecret("root")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret: %v", err)
	}
	if key.Secret == "" || key.URL == "" {
		t.Fatalf("empty key: %+v", key)
	}

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(key.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	if ok, err := ValidateTOTP(key.Secret, code, now.Add(20*time.Second)); err != nil || !ok {
		t.Fatalf("ValidateTOTP(current) = %v, %v", ok, err)
	}
	if ok, _ := ValidateTOTP(key.Secret, code, now.Add(5*time.Minute)); ok {
		t.Fatalf("stale code accepted")
	}
	if ok, err := ValidateTOTP(key.Secret, "", now); err != nil || ok {
		t.Fatalf("empty code = %v, %v", ok, err)
	}
	if ok, err := ValidateTOTP(key.Secret, "12", now); err != nil || ok {
		t.Fatalf("short code = %v, %v", ok, err)
	}
}

func TestGenerateSecretIsRandom(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	b, _ := GenerateSecret()
	if a == b || len(a) < 32 {
		t.Fatalf("weak secrets: %q %q", a, b)
	}
}
