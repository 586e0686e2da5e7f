// Package policy holds the input rules for account credentials and for
// user-supplied folder and file names.
package policy

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adamscao/shotserver/internal/apperr"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 12
	maxPasswordBytes  = 72 // bcrypt input limit
	maxNameLength     = 255
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s.]+(\.[^@\s.]+)+$`)
	namePattern     = regexp.MustCompile(`^[a-zA-Z0-9_-][a-zA-Z0-9_.-]*$`)
)

// Validator validates registration input against account policy
type Validator struct {
	minPasswordLength int
}

// NewValidator creates a new policy validator
func NewValidator() *Validator {
	return &Validator{minPasswordLength: minPasswordLength}
}

// ValidateRegistration checks all fields of a registration submission
func (v *Validator) ValidateRegistration(username, password, email string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := v.ValidatePassword(password); err != nil {
		return err
	}
	return ValidateEmail(email)
}

// ValidatePassword requires at least 12 characters, at most 72 bytes, plus upper, lower, digit and punctuation classes
func (v *Validator) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < v.minPasswordLength {
		return apperr.Validation("Password must be at least %d characters long", v.minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return apperr.Validation("Password must be at most %d bytes long", maxPasswordBytes)
	}

	var upper, lower, digit, punct bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct = true
		}
	}

	var missing []string
	if !upper {
		missing = append(missing, "an uppercase letter")
	}
	if !lower {
		missing = append(missing, "a lowercase letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !punct {
		missing = append(missing, "a punctuation character")
	}
	if len(missing) > 0 {
		return apperr.Validation("Password must contain %s", strings.Join(missing, ", "))
	}

	return nil
}

// ValidateUsername enforces length and the [a-zA-Z0-9_-] charset
func ValidateUsername(username string) error {
	if len(username) < minUsernameLength {
		return apperr.Validation("Username must be at least %d characters long", minUsernameLength)
	}
	if len(username) > maxUsernameLength {
		return apperr.Validation("Username must be at most %d characters long", maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return apperr.Validation("Username may only contain letters, digits, underscores and hyphens")
	}
	return nil
}

// ValidateEmail checks the local@domain.tld shape
func ValidateEmail(email string) error {
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return apperr.Validation("Invalid email address")
	}
	return nil
}

// ValidateName checks a folder or file name supplied by a client. Names may
// not start with a dot, which also rules out "." and "..".
func ValidateName(name string) error {
	if name == "" {
		return apperr.Validation("Name must not be empty")
	}
	if len(name) > maxNameLength {
		return apperr.Validation("Name must be at most %d characters long", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return apperr.Validation("Invalid name %q: only letters, digits, '_', '-' and '.' are allowed", name)
	}
	return nil
}
