package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOrganizerStore persists organizer accounts in PostgreSQL.
type PostgresOrganizerStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed organizer store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresOrganizerStore {
	return &PostgresOrganizerStore{db: db}
}

func (s *PostgresOrganizerStore) FindByKeyID(ctx context.Context, keyID string) (*Organizer, error) {
	organizer := &Organizer{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, key_id, key_hash FROM organizers WHERE key_id = $1`, keyID,
	).Scan(&organizer.ID, &organizer.Name, &organizer.Email, &organizer.KeyID, &organizer.KeyHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find organizer: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT capability FROM organizer_capabilities WHERE organizer_id = $1`,
		organizer.ID)
	if err != nil {
		return nil, fmt.Errorf("load capabilities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var capability Capability
		if err := rows.Scan(&capability); err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		organizer.Capabilities = append(organizer.Capabilities, capability)
	}
	return organizer, rows.Err()
}

func (s *PostgresOrganizerStore) Save(ctx context.Context, organizer *Organizer) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO organizers (name, email, key_id, key_hash) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key_id) DO UPDATE SET
		   name = EXCLUDED.name, email = EXCLUDED.email, key_hash = EXCLUDED.key_hash
		 RETURNING id`,
		organizer.Name, organizer.Email, organizer.KeyID, organizer.KeyHash,
	).Scan(&organizer.ID)
	if err != nil {
		return fmt.Errorf("save organizer: %w", err)
	}

	if _, err := s.db.Exec(ctx,
		`DELETE FROM organizer_capabilities WHERE organizer_id = $1`, organizer.ID); err != nil {
		return fmt.Errorf("reset capabilities: %w", err)
	}
	for _, capability := range organizer.Capabilities {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO organizer_capabilities (organizer_id, capability)
			 VALUES ($1, $2)`, organizer.ID, string(capability)); err != nil {
			return fmt.Errorf("grant capability %q: %w", capability, err)
		}
	}
	return nil
}

var _ OrganizerStore = (*PostgresOrganizerStore)(nil)
