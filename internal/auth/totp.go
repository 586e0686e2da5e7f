package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer = "shotserver"
)

// TOTPKey is a freshly generated second-factor secret
type TOTPKey struct {
	Secret string
	URL    string // otpauth:// URL for QR enrolment
}

// GenerateTOTPSecret generates a new TOTP secret for username
func GenerateTOTPSecret(username string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return &TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTP validates a TOTP code against a secret at the given time.
// One period of skew is tolerated in either direction.
func ValidateTOTP(secret, code string, at time.Time) (bool, error) {
	if code == "" {
		return false, nil
	}

	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed codes are a failed attempt, not a server error
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}

	return valid, nil
}
