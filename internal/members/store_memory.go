package members

import (
	"context"
	"sort"
	"sync"
)

// InMemoryPersonStore stores persons in memory for tests and development.
type InMemoryPersonStore struct {
	mu      sync.RWMutex
	nextID  int64
	persons map[int64]*Person
	byEmail map[string]int64
}

// NewInMemoryStore constructs an empty in-memory person store.
func NewInMemoryStore() *InMemoryPersonStore {
	return &InMemoryPersonStore{
		nextID:  1,
		persons: make(map[int64]*Person),
		byEmail: make(map[string]int64),
	}
}

func (s *InMemoryPersonStore) FindOrCreateByEmail(_ context.Context, email, name string) (*Person, bool, error) {
	email = NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[email]; ok {
		clone := *s.persons[id]
		return &clone, false, nil
	}

	person := &Person{ID: s.nextID, Name: name, Email: email}
	s.nextID++
	s.persons[person.ID] = person
	s.byEmail[email] = person.ID

	clone := *person
	return &clone, true, nil
}

func (s *InMemoryPersonStore) FindByID(_ context.Context, id int64) (*Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if person, ok := s.persons[id]; ok {
		clone := *person
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryPersonStore) FindByEmail(_ context.Context, email string) (*Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[NormalizeEmail(email)]; ok {
		clone := *s.persons[id]
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryPersonStore) Create(_ context.Context, person *Person) error {
	email := NormalizeEmail(person.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}
	person.ID = s.nextID
	person.Email = email
	s.nextID++

	clone := *person
	s.persons[person.ID] = &clone
	s.byEmail[email] = person.ID
	return nil
}

func (s *InMemoryPersonStore) List(_ context.Context) ([]Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	persons := make([]Person, 0, len(s.persons))
	for _, p := range s.persons {
		persons = append(persons, *p)
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].ID < persons[j].ID })
	return persons, nil
}

var _ PersonStore = (*InMemoryPersonStore)(nil)
