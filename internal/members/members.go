// Package members holds the Person records shared across the member database
// and the event-registration engine. Persons are created lazily, keyed by
// their unique email.
package members

import (
	"context"
	"strings"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific not found errors consistent across
// implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "person not found")

// ErrEmailTaken is returned by strict creates when the email already exists.
var ErrEmailTaken = dErrors.New(dErrors.CodeConflict, "person already exists")

// Person is one member or event participant.
type Person struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PersonStore defines persistence for persons.
// Error Contract: Find methods return ErrNotFound when no person matches;
// Create returns ErrEmailTaken on a duplicate email.
type PersonStore interface {
	// FindOrCreateByEmail returns the person with the given email, creating
	// one with the given name if none exists. The second return value reports
	// whether a new person was created. Lookup is idempotent by email, so a
	// retried call after a partial failure is harmless.
	FindOrCreateByEmail(ctx context.Context, email, name string) (*Person, bool, error)

	FindByID(ctx context.Context, id int64) (*Person, error)
	FindByEmail(ctx context.Context, email string) (*Person, error)
	Create(ctx context.Context, person *Person) error
	List(ctx context.Context) ([]Person, error)
}

// NormalizeEmail lowercases and trims an address so the unique-email
// invariant is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
