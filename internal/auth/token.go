package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	secretLength = 48
)

// GenerateSecret returns a random URL-safe secret suitable for signing
// session cookies when no key is configured in development
func GenerateSecret() (string, error) {
	bytes := make([]byte, secretLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
