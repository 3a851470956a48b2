// Package models holds the event-registration data model.
package models

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/pep-dortmund/member-database/internal/schemaform"
)

// Status is the fixed registration-status vocabulary, seeded at bootstrap.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusWaitinglist Status = "waitinglist"
	StatusCanceled    Status = "canceled"
)

// Statuses returns the complete vocabulary for the bootstrap step.
func Statuses() []Status {
	return []Status{StatusConfirmed, StatusPending, StatusWaitinglist, StatusCanceled}
}

// Valid reports whether s is part of the vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitinglist, StatusCanceled:
		return true
	}
	return false
}

// Event is a capacity-limited activity carrying an organizer-authored
// questionnaire. A nil MaxParticipants means unlimited capacity.
type Event struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// NotifyEmail, when set, receives a message for every admission decision.
	NotifyEmail string `json:"notify_email,omitempty"`

	// ForceInstitutionalEmail restricts participant addresses to the
	// configured institutional mail domain.
	ForceInstitutionalEmail bool `json:"force_institutional_email"`

	// Shortlink is an organizer-chosen URL alias; defaults to the name with
	// spaces removed.
	Shortlink string `json:"shortlink,omitempty"`

	MaxParticipants  *int `json:"max_participants"`
	RegistrationOpen bool `json:"registration_open"`

	// RegistrationSchema must pass the meta-schema check before it can be
	// attached; see schemaform.CheckSchema.
	RegistrationSchema *schemaform.Schema `json:"registration_schema"`
}

// DefaultShortlink derives the URL alias from the event name.
func DefaultShortlink(name string) string {
	return url.PathEscape(strings.ReplaceAll(name, " ", ""))
}

// Registration is one person's application to one event. Data is the payload
// that validated against the event's schema at the moment it was written; the
// schema may change afterwards and historical payloads are not revalidated.
type Registration struct {
	ID       int64  `json:"id"`
	EventID  int64  `json:"event_id"`
	PersonID int64  `json:"person_id"`
	Status   Status `json:"status"`

	Data json.RawMessage `json:"data"`

	// Timestamp is stamped exactly once, by the admission decision.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// EventSummary pairs an event with its computed occupancy.
type EventSummary struct {
	Event
	ConfirmedCount int `json:"confirmed_count"`

	// FreePlaces is nil for events without a participant limit.
	FreePlaces *int `json:"free_places"`
}

// BookedOut reports whether the event has no free places left.
func (s *EventSummary) BookedOut() bool {
	return s.FreePlaces != nil && *s.FreePlaces < 1
}

// Participant is a registration joined with its person, as shown in the
// organizer's participant listing.
type Participant struct {
	Registration
	PersonName  string `json:"person_name"`
	PersonEmail string `json:"person_email"`
}
