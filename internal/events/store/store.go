// Package store persists events and their registrations. A memory
// implementation backs tests and small deployments; the Postgres
// implementation is the production path.
package store

import (
	"context"
	"encoding/json"

	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific not found errors consistent across
// implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

// EventStore defines persistence for events.
// Error Contract: Find methods return ErrNotFound when no event matches.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	FindEventByID(ctx context.Context, id int64) (*models.Event, error)
	FindEventByShortlink(ctx context.Context, shortlink string) (*models.Event, error)

	// UpdateEvent replaces the stored event, schema included.
	UpdateEvent(ctx context.Context, event *models.Event) error

	// UpdateSchema swaps the questionnaire attached to an event. Existing
	// registration payloads are left untouched.
	UpdateSchema(ctx context.Context, eventID int64, schema *schemaform.Schema) error

	// ListEvents returns events with their confirmed counts and free places.
	// With openOnly set, events closed for registration are skipped.
	ListEvents(ctx context.Context, openOnly bool) ([]models.EventSummary, error)
}

// RegistrationStore defines persistence for registrations and carries the
// admission decision, which must be atomic with respect to concurrent
// confirmations for the same event.
type RegistrationStore interface {
	// FindOrCreateRegistration returns the registration for the
	// (event, person) pair, creating a pending one with the given payload if
	// none exists. The second return value reports whether a new registration
	// was created; for an existing one the stored payload wins and the
	// submitted data is discarded.
	FindOrCreateRegistration(ctx context.Context, reg *models.Registration) (*models.Registration, bool, error)

	FindRegistrationByID(ctx context.Context, id int64) (*models.Registration, error)

	// UpdateRegistrationData replaces the payload without touching status or
	// timestamp.
	UpdateRegistrationData(ctx context.Context, id int64, data json.RawMessage) error

	// DeleteRegistration removes the registration entirely. Callers decide
	// whether cancellation is allowed; no other registration changes status
	// as a consequence.
	DeleteRegistration(ctx context.Context, id int64) error

	CountConfirmed(ctx context.Context, eventID int64) (int, error)

	// ListParticipants returns all registrations for an event joined with
	// their persons, ordered by id.
	ListParticipants(ctx context.Context, eventID int64) ([]models.Participant, error)

	// ListOpenRegistrationsByPerson returns the person's registrations for
	// events that are still open for registration.
	ListOpenRegistrationsByPerson(ctx context.Context, personID int64) ([]models.Registration, error)

	// Admit decides a pending registration: confirmed while confirmed places
	// remain under the event's limit, waitinglist otherwise, stamping the
	// decision time. Other statuses are returned unchanged, so a repeated
	// call cannot flip an earlier decision. The count-and-decide step is
	// atomic; two concurrent calls for the last place admit exactly one.
	Admit(ctx context.Context, registrationID int64) (models.Status, error)
}

// Store bundles both interfaces; implementations share state because the
// admission decision spans events and registrations.
type Store interface {
	EventStore
	RegistrationStore
}
