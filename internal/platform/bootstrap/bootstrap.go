// Package bootstrap seeds the fixed vocabularies the application relies on:
// registration statuses and organizer capabilities. Seeding is idempotent,
// every startup converges the tables to the current enumeration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/events/models"
)

// Bootstrap converges the seed tables on startup.
type Bootstrap struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{db: db, logger: logger}
}

// Run seeds statuses and capabilities. New enumeration values are inserted,
// existing rows stay untouched so foreign keys keep working.
func (b *Bootstrap) Run(ctx context.Context) error {
	if err := b.seedStatuses(ctx); err != nil {
		return err
	}
	if err := b.seedCapabilities(ctx); err != nil {
		return err
	}
	return b.ensureOrganizer(ctx)
}

func (b *Bootstrap) seedStatuses(ctx context.Context) error {
	for _, status := range models.Statuses() {
		_, err := b.db.Exec(ctx,
			`INSERT INTO registration_statuses (name) VALUES ($1)
			 ON CONFLICT (name) DO NOTHING`, string(status))
		if err != nil {
			return fmt.Errorf("seed status %q: %w", status, err)
		}
	}
	return nil
}

func (b *Bootstrap) seedCapabilities(ctx context.Context) error {
	for _, capability := range authz.All() {
		_, err := b.db.Exec(ctx,
			`INSERT INTO capabilities (name) VALUES ($1)
			 ON CONFLICT (name) DO NOTHING`, string(capability))
		if err != nil {
			return fmt.Errorf("seed capability %q: %w", capability, err)
		}
	}
	return nil
}

// ensureOrganizer creates a first organizer key with every capability when
// none exists yet, so a fresh deployment can be administered at all. The
// secret is logged exactly once and never stored in the clear.
func (b *Bootstrap) ensureOrganizer(ctx context.Context) error {
	var count int
	if err := b.db.QueryRow(ctx, `SELECT COUNT(*) FROM organizers`).Scan(&count); err != nil {
		return fmt.Errorf("count organizers: %w", err)
	}
	if count > 0 {
		return nil
	}

	secret, err := authz.GenerateKeySecret()
	if err != nil {
		return err
	}
	hash, err := authz.HashKeySecret(secret)
	if err != nil {
		return err
	}

	var organizerID int64
	err = b.db.QueryRow(ctx,
		`INSERT INTO organizers (name, email, key_id, key_hash)
		 VALUES ('Bootstrap', '', $1, $2) RETURNING id`,
		"bootstrap", hash,
	).Scan(&organizerID)
	if err != nil {
		return fmt.Errorf("create bootstrap organizer: %w", err)
	}
	for _, capability := range authz.All() {
		_, err := b.db.Exec(ctx,
			`INSERT INTO organizer_capabilities (organizer_id, capability)
			 VALUES ($1, $2)`, organizerID, string(capability))
		if err != nil {
			return fmt.Errorf("grant capability %q: %w", capability, err)
		}
	}

	b.logger.Warn("created bootstrap organizer key, rotate it after setup",
		"api_key", "bootstrap."+secret)
	return nil
}
