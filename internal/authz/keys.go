package authz

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Organizer API keys are presented as "keyID.secret"; only the bcrypt hash of
// the secret half is stored.

// GenerateKeySecret creates the cryptographically random secret half of a key.
func GenerateKeySecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate key secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKeySecret creates a bcrypt hash of the secret for storage.
func HashKeySecret(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeValidation, "key secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "key secret is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash key secret")
	}
	return string(hashed), nil
}

// VerifyKeySecret checks a presented secret against the stored hash.
func VerifyKeySecret(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify api key")
	}
	return nil
}
