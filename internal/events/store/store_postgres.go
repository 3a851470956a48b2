package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/schemaform"
)

// PostgresStore persists events and registrations in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed event store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, name, description, notify_email, force_institutional_email,
	shortlink, max_participants, registration_open, registration_schema`

func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.Event) error {
	schemaJSON, err := marshalSchema(event.RegistrationSchema)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO events
		   (name, description, notify_email, force_institutional_email,
		    shortlink, max_participants, registration_open, registration_schema)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		event.Name, event.Description, event.NotifyEmail, event.ForceInstitutionalEmail,
		event.Shortlink, event.MaxParticipants, event.RegistrationOpen, schemaJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindEventByID(ctx context.Context, id int64) (*models.Event, error) {
	return s.scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (s *PostgresStore) FindEventByShortlink(ctx context.Context, shortlink string) (*models.Event, error) {
	return s.scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE shortlink = $1`, shortlink))
}

func (s *PostgresStore) scanEvent(row pgx.Row) (*models.Event, error) {
	var event models.Event
	var schemaJSON []byte
	err := row.Scan(&event.ID, &event.Name, &event.Description, &event.NotifyEmail,
		&event.ForceInstitutionalEmail, &event.Shortlink, &event.MaxParticipants,
		&event.RegistrationOpen, &schemaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	if event.RegistrationSchema, err = unmarshalSchema(schemaJSON); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, event *models.Event) error {
	schemaJSON, err := marshalSchema(event.RegistrationSchema)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET
		   name = $2, description = $3, notify_email = $4,
		   force_institutional_email = $5, shortlink = $6,
		   max_participants = $7, registration_open = $8, registration_schema = $9
		 WHERE id = $1`,
		event.ID, event.Name, event.Description, event.NotifyEmail,
		event.ForceInstitutionalEmail, event.Shortlink, event.MaxParticipants,
		event.RegistrationOpen, schemaJSON)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSchema(ctx context.Context, eventID int64, schema *schemaform.Schema) error {
	schemaJSON, err := marshalSchema(schema)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET registration_schema = $2 WHERE id = $1`, eventID, schemaJSON)
	if err != nil {
		return fmt.Errorf("update event schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, openOnly bool) ([]models.EventSummary, error) {
	query := `SELECT ` + eventColumns + `,
		(SELECT COUNT(*) FROM event_registrations r
		  WHERE r.event_id = events.id AND r.status = 'confirmed') AS confirmed_count
	 FROM events`
	if openOnly {
		query += ` WHERE registration_open`
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var summaries []models.EventSummary
	for rows.Next() {
		var summary models.EventSummary
		var schemaJSON []byte
		err := rows.Scan(&summary.ID, &summary.Name, &summary.Description, &summary.NotifyEmail,
			&summary.ForceInstitutionalEmail, &summary.Shortlink, &summary.MaxParticipants,
			&summary.RegistrationOpen, &schemaJSON, &summary.ConfirmedCount)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if summary.RegistrationSchema, err = unmarshalSchema(schemaJSON); err != nil {
			return nil, err
		}
		if summary.MaxParticipants != nil {
			free := *summary.MaxParticipants - summary.ConfirmedCount
			summary.FreePlaces = &free
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) FindOrCreateRegistration(ctx context.Context, reg *models.Registration) (*models.Registration, bool, error) {
	// The insert races against duplicate submits for the same pair; ON
	// CONFLICT DO NOTHING plus the follow-up select keeps the operation
	// idempotent on (event, person).
	created := &models.Registration{}
	err := s.db.QueryRow(ctx,
		`INSERT INTO event_registrations (event_id, person_id, status, data)
		 VALUES ($1, $2, 'pending', $3)
		 ON CONFLICT (event_id, person_id) DO NOTHING
		 RETURNING id, event_id, person_id, status, data, confirmed_at`,
		reg.EventID, reg.PersonID, []byte(reg.Data),
	).Scan(&created.ID, &created.EventID, &created.PersonID, &created.Status,
		&created.Data, &created.Timestamp)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert registration: %w", err)
	}

	existing := &models.Registration{}
	err = s.db.QueryRow(ctx,
		`SELECT id, event_id, person_id, status, data, confirmed_at
		 FROM event_registrations WHERE event_id = $1 AND person_id = $2`,
		reg.EventID, reg.PersonID,
	).Scan(&existing.ID, &existing.EventID, &existing.PersonID, &existing.Status,
		&existing.Data, &existing.Timestamp)
	if err != nil {
		return nil, false, fmt.Errorf("find registration: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) FindRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	reg := &models.Registration{}
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, person_id, status, data, confirmed_at
		 FROM event_registrations WHERE id = $1`, id,
	).Scan(&reg.ID, &reg.EventID, &reg.PersonID, &reg.Status, &reg.Data, &reg.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find registration by id: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) UpdateRegistrationData(ctx context.Context, id int64, data json.RawMessage) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE event_registrations SET data = $2 WHERE id = $1`, id, []byte(data))
	if err != nil {
		return fmt.Errorf("update registration data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRegistration(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM event_registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountConfirmed(ctx context.Context, eventID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = 'confirmed'`,
		eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count confirmed: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, eventID int64) ([]models.Participant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.event_id, r.person_id, r.status, r.data, r.confirmed_at,
		        p.name, p.email
		 FROM event_registrations r
		 JOIN persons p ON p.id = r.person_id
		 WHERE r.event_id = $1
		 ORDER BY r.id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		err := rows.Scan(&p.ID, &p.EventID, &p.PersonID, &p.Status, &p.Data,
			&p.Timestamp, &p.PersonName, &p.PersonEmail)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *PostgresStore) ListOpenRegistrationsByPerson(ctx context.Context, personID int64) ([]models.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.event_id, r.person_id, r.status, r.data, r.confirmed_at
		 FROM event_registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.person_id = $1 AND e.registration_open
		 ORDER BY r.id`, personID)
	if err != nil {
		return nil, fmt.Errorf("list registrations by person: %w", err)
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		var reg models.Registration
		err := rows.Scan(&reg.ID, &reg.EventID, &reg.PersonID, &reg.Status,
			&reg.Data, &reg.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Admit locks the registration row and its event row for the duration of the
// count-and-decide transaction, so two confirmations racing for the last free
// place serialize and exactly one is confirmed.
func (s *PostgresStore) Admit(ctx context.Context, registrationID int64) (models.Status, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback(ctx)

	var eventID int64
	var status models.Status
	err = tx.QueryRow(ctx,
		`SELECT event_id, status FROM event_registrations WHERE id = $1 FOR UPDATE`,
		registrationID,
	).Scan(&eventID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lock registration: %w", err)
	}
	if status != models.StatusPending {
		// Already decided; the earlier decision stands.
		return status, nil
	}

	var maxParticipants *int
	err = tx.QueryRow(ctx,
		`SELECT max_participants FROM events WHERE id = $1 FOR UPDATE`, eventID,
	).Scan(&maxParticipants)
	if err != nil {
		return "", fmt.Errorf("lock event: %w", err)
	}

	decided := models.StatusConfirmed
	if maxParticipants != nil {
		var confirmed int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = 'confirmed'`,
			eventID,
		).Scan(&confirmed)
		if err != nil {
			return "", fmt.Errorf("count confirmed: %w", err)
		}
		if confirmed >= *maxParticipants {
			decided = models.StatusWaitinglist
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE event_registrations SET status = $2, confirmed_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		registrationID, decided, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("decide admission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit admission: %w", err)
	}
	return decided, nil
}

func marshalSchema(schema *schemaform.Schema) ([]byte, error) {
	if schema == nil {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return raw, nil
}

func unmarshalSchema(raw []byte) (*schemaform.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	schema := &schemaform.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return schema, nil
}

var _ Store = (*PostgresStore)(nil)
