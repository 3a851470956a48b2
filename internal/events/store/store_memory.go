package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/members"
	"github.com/pep-dortmund/member-database/internal/schemaform"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return nil for successful operations

// InMemoryStore keeps events and registrations in memory for tests and
// single-process deployments. A single mutex guards both maps so the
// admission decision observes a consistent confirmed count.
type InMemoryStore struct {
	mu sync.RWMutex

	events        map[int64]*models.Event
	registrations map[int64]*models.Registration

	// persons resolves the join for participant listings.
	persons members.PersonStore

	nextEventID int64
	nextRegID   int64

	now func() time.Time
}

// NewInMemoryStore constructs an empty store. The person store is consulted
// read-only for participant listings.
func NewInMemoryStore(persons members.PersonStore) *InMemoryStore {
	return &InMemoryStore{
		events:        make(map[int64]*models.Event),
		registrations: make(map[int64]*models.Registration),
		persons:       persons,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the decision-timestamp source for tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	event.ID = s.nextEventID
	copyEvent := *event
	s.events[event.ID] = &copyEvent
	return nil
}

func (s *InMemoryStore) FindEventByID(_ context.Context, id int64) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	copyEvent := *event
	return &copyEvent, nil
}

func (s *InMemoryStore) FindEventByShortlink(_ context.Context, shortlink string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, event := range s.events {
		if event.Shortlink == shortlink {
			copyEvent := *event
			return &copyEvent, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) UpdateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return ErrNotFound
	}
	copyEvent := *event
	s.events[event.ID] = &copyEvent
	return nil
}

func (s *InMemoryStore) UpdateSchema(_ context.Context, eventID int64, schema *schemaform.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	event.RegistrationSchema = schema
	return nil
}

func (s *InMemoryStore) ListEvents(_ context.Context, openOnly bool) ([]models.EventSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summaries := make([]models.EventSummary, 0, len(s.events))
	for _, event := range s.events {
		if openOnly && !event.RegistrationOpen {
			continue
		}
		summaries = append(summaries, s.summarizeLocked(event))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

func (s *InMemoryStore) summarizeLocked(event *models.Event) models.EventSummary {
	copyEvent := *event
	summary := models.EventSummary{Event: copyEvent, ConfirmedCount: s.countConfirmedLocked(event.ID)}
	if event.MaxParticipants != nil {
		free := *event.MaxParticipants - summary.ConfirmedCount
		summary.FreePlaces = &free
	}
	return summary
}

func (s *InMemoryStore) countConfirmedLocked(eventID int64) int {
	count := 0
	for _, reg := range s.registrations {
		if reg.EventID == eventID && reg.Status == models.StatusConfirmed {
			count++
		}
	}
	return count
}

func (s *InMemoryStore) FindOrCreateRegistration(_ context.Context, reg *models.Registration) (*models.Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.registrations {
		if existing.EventID == reg.EventID && existing.PersonID == reg.PersonID {
			copyReg := *existing
			return &copyReg, false, nil
		}
	}
	s.nextRegID++
	reg.ID = s.nextRegID
	reg.Status = models.StatusPending
	copyReg := *reg
	s.registrations[reg.ID] = &copyReg
	result := copyReg
	return &result, true, nil
}

func (s *InMemoryStore) FindRegistrationByID(_ context.Context, id int64) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copyReg := *reg
	return &copyReg, nil
}

func (s *InMemoryStore) UpdateRegistrationData(_ context.Context, id int64, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return ErrNotFound
	}
	reg.Data = append(json.RawMessage(nil), data...)
	return nil
}

func (s *InMemoryStore) DeleteRegistration(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[id]; !ok {
		return ErrNotFound
	}
	delete(s.registrations, id)
	return nil
}

func (s *InMemoryStore) CountConfirmed(_ context.Context, eventID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countConfirmedLocked(eventID), nil
}

func (s *InMemoryStore) ListParticipants(ctx context.Context, eventID int64) ([]models.Participant, error) {
	s.mu.RLock()
	var regs []models.Registration
	for _, reg := range s.registrations {
		if reg.EventID == eventID {
			regs = append(regs, *reg)
		}
	}
	s.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
	participants := make([]models.Participant, 0, len(regs))
	for _, reg := range regs {
		person, err := s.persons.FindByID(ctx, reg.PersonID)
		if err != nil {
			return nil, err
		}
		participants = append(participants, models.Participant{
			Registration: reg,
			PersonName:   person.Name,
			PersonEmail:  person.Email,
		})
	}
	return participants, nil
}

func (s *InMemoryStore) ListOpenRegistrationsByPerson(_ context.Context, personID int64) ([]models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var regs []models.Registration
	for _, reg := range s.registrations {
		if reg.PersonID != personID {
			continue
		}
		event, ok := s.events[reg.EventID]
		if !ok || !event.RegistrationOpen {
			continue
		}
		regs = append(regs, *reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
	return regs, nil
}

func (s *InMemoryStore) Admit(_ context.Context, registrationID int64) (models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[registrationID]
	if !ok {
		return "", ErrNotFound
	}
	if reg.Status != models.StatusPending {
		return reg.Status, nil
	}
	event, ok := s.events[reg.EventID]
	if !ok {
		return "", ErrNotFound
	}
	status := models.StatusConfirmed
	if event.MaxParticipants != nil && s.countConfirmedLocked(event.ID) >= *event.MaxParticipants {
		status = models.StatusWaitinglist
	}
	now := s.now()
	reg.Status = status
	reg.Timestamp = &now
	return status, nil
}

var _ Store = (*InMemoryStore)(nil)
