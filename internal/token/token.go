// Package token issues and verifies the signed opaque tokens used in
// confirmation, cancellation, and edit links. A token binds a (person,
// registration) pair to a purpose; the signing key is derived per purpose
// from the process-wide secret, so a token minted for one purpose never
// verifies under another.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Purpose scopes a token to one class of links. Purposes are an explicit
// typed parameter rather than a string salt convention so unrelated token
// classes cannot collide by accident.
type Purpose string

const (
	// PurposeRegistration links confirm, edit, and cancel actions to a
	// registration. These tokens deliberately carry no expiry: a participant
	// may need to confirm or amend a registration long after the original
	// message was sent.
	PurposeRegistration Purpose = "registration"

	PurposeProfileEdit   Purpose = "profile-edit"
	PurposeDataExport    Purpose = "data-export"
	PurposePasswordReset Purpose = "password-reset"
)

// ttls lists the purposes whose tokens expire. Everything else is unlimited.
var ttls = map[Purpose]time.Duration{
	PurposeProfileEdit:   7 * 24 * time.Hour,
	PurposeDataExport:    24 * time.Hour,
	PurposePasswordReset: time.Hour,
}

var errInvalidToken = dErrors.New(dErrors.CodeInvalidToken, "invalid token")

type claims struct {
	Purpose        Purpose `json:"purpose"`
	PersonID       int64   `json:"person_id"`
	RegistrationID int64   `json:"registration_id,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies purpose-scoped tokens with HMAC-SHA256.
type Service struct {
	secret []byte
	now    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a token service from the process-wide secret key.
func New(secret string, opts ...Option) *Service {
	svc := &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// key derives the purpose-specific signing key. Deriving instead of sharing
// the raw secret keeps the purposes cryptographically disjoint.
func (s *Service) key(purpose Purpose) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}

// Issue returns a signed URL-safe token binding (person, registration) to the
// given purpose. For purposes without a registration component (for example
// password resets), registrationID is zero.
func (s *Service) Issue(purpose Purpose, personID, registrationID int64) (string, error) {
	now := s.now()
	c := claims{
		Purpose:        purpose,
		PersonID:       personID,
		RegistrationID: registrationID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl, ok := ttls[purpose]; ok {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key(purpose))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}
	return signed, nil
}

// Verify checks the token against the purpose's key and returns the bound
// (person, registration) pair. Any failure, including a token minted for a
// different purpose, yields the same invalid-token error.
func (s *Service) Verify(purpose Purpose, tok string) (personID, registrationID int64, err error) {
	parsed, err := jwt.ParseWithClaims(tok, &claims{},
		func(*jwt.Token) (any, error) { return s.key(purpose), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return 0, 0, errInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Purpose != purpose || c.PersonID == 0 {
		return 0, 0, errInvalidToken
	}
	return c.PersonID, c.RegistrationID, nil
}
