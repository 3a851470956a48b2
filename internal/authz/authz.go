// Package authz gates organizer-only operations behind capabilities. The
// capability set is declared centrally here and seeded by the bootstrap step,
// rather than discovered as a side effect of registering routes.
package authz

import (
	"context"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Capability names one organizer-only operation class.
type Capability string

const (
	// CapViewRegistration lets an organizer preview a registration form while
	// the registration window is closed.
	CapViewRegistration Capability = "view_registration"

	CapGetParticipants    Capability = "get_participants"
	CapWriteEmail         Capability = "write_email"
	CapResendConfirmation Capability = "resend_confirmation"
	CapEditSchema         Capability = "edit_schema"
	CapGetPersons         Capability = "get_persons"
)

// All returns the complete capability enumeration consumed by bootstrap.
func All() []Capability {
	return []Capability{
		CapViewRegistration,
		CapGetParticipants,
		CapWriteEmail,
		CapResendConfirmation,
		CapEditSchema,
		CapGetPersons,
	}
}

// ErrNotFound keeps storage-specific not found errors consistent.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "organizer not found")

// Organizer is an authenticated staff account holding an API key and a set of
// capabilities.
type Organizer struct {
	ID           int64
	Name         string
	Email        string
	KeyID        string
	KeyHash      string
	Capabilities []Capability
}

// Can reports whether the organizer holds the capability.
func (o *Organizer) Can(capability Capability) bool {
	for _, c := range o.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// OrganizerStore defines persistence for organizer accounts.
// Error Contract: FindByKeyID returns ErrNotFound when no organizer matches.
type OrganizerStore interface {
	FindByKeyID(ctx context.Context, keyID string) (*Organizer, error)
	Save(ctx context.Context, organizer *Organizer) error
}

// Authorizer is the opaque access predicate consumed by handlers.
type Authorizer interface {
	HasAccess(ctx context.Context, organizer *Organizer, capability Capability) bool
}

// CapabilityAuthorizer grants access purely from the organizer's stored
// capability set.
type CapabilityAuthorizer struct{}

func (CapabilityAuthorizer) HasAccess(_ context.Context, organizer *Organizer, capability Capability) bool {
	return organizer != nil && organizer.Can(capability)
}
