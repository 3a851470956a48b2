package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersonStore persists persons in PostgreSQL.
type PostgresPersonStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed person store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresPersonStore {
	return &PostgresPersonStore{db: db}
}

func (s *PostgresPersonStore) FindOrCreateByEmail(ctx context.Context, email, name string) (*Person, bool, error) {
	email = NormalizeEmail(email)

	// The insert races against concurrent submits for the same address; ON
	// CONFLICT DO NOTHING plus the follow-up select makes the operation
	// idempotent by email.
	var person Person
	err := s.db.QueryRow(ctx,
		`INSERT INTO persons (name, email)
		 VALUES ($1, $2)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id, name, email`,
		name, email,
	).Scan(&person.ID, &person.Name, &person.Email)
	if err == nil {
		return &person, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create person: %w", err)
	}

	existing, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresPersonStore) FindByID(ctx context.Context, id int64) (*Person, error) {
	var person Person
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email FROM persons WHERE id = $1`, id,
	).Scan(&person.ID, &person.Name, &person.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find person by id: %w", err)
	}
	return &person, nil
}

func (s *PostgresPersonStore) FindByEmail(ctx context.Context, email string) (*Person, error) {
	var person Person
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email FROM persons WHERE email = $1`, NormalizeEmail(email),
	).Scan(&person.ID, &person.Name, &person.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find person by email: %w", err)
	}
	return &person, nil
}

func (s *PostgresPersonStore) Create(ctx context.Context, person *Person) error {
	person.Email = NormalizeEmail(person.Email)
	err := s.db.QueryRow(ctx,
		`INSERT INTO persons (name, email) VALUES ($1, $2) RETURNING id`,
		person.Name, person.Email,
	).Scan(&person.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *PostgresPersonStore) List(ctx context.Context) ([]Person, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, email FROM persons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ PersonStore = (*PostgresPersonStore)(nil)
