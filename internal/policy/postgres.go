package policy

import (
	"context"
	"database/sql"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

// PostgresStore is a Postgres-backed GlobalPolicy store, single row id=0.
type PostgresStore struct {
	db             *sql.DB
	defaultTimeout int
}

// NewPostgresStore wraps an existing connection pool as a GlobalPolicy
// store. defaultKeepAliveTimeoutSeconds seeds the row the first time Get is
// called and no row exists yet.
func NewPostgresStore(db *sql.DB, defaultKeepAliveTimeoutSeconds int) *PostgresStore {
	return &PostgresStore{db: db, defaultTimeout: defaultKeepAliveTimeoutSeconds}
}

// Migrate creates the global_policy table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS global_policy (
			id INTEGER PRIMARY KEY DEFAULT 0,
			session_creation_enabled BOOLEAN NOT NULL DEFAULT true,
			keep_alive_timeout INTEGER NOT NULL DEFAULT 1000
		)
	`)
	if err != nil {
		return apierr.InternalWrap("failed to migrate global_policy", err)
	}
	return nil
}

func (s *PostgresStore) ensureRow(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_policy (id, session_creation_enabled, keep_alive_timeout)
		VALUES (0, true, $1)
		ON CONFLICT (id) DO NOTHING
	`, s.defaultTimeout)
	if err != nil {
		return apierr.InternalWrap("failed to initialize global policy", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context) (GlobalPolicy, error) {
	if err := s.ensureRow(ctx); err != nil {
		return GlobalPolicy{}, err
	}
	var p GlobalPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT session_creation_enabled, keep_alive_timeout FROM global_policy WHERE id = 0
	`).Scan(&p.SessionCreationEnabled, &p.KeepAliveTimeoutSeconds)
	if err != nil {
		return GlobalPolicy{}, apierr.InternalWrap("failed to read global policy", err)
	}
	return p, nil
}

func (s *PostgresStore) Suspend(ctx context.Context) (GlobalPolicy, error) {
	return s.setEnabled(ctx, false)
}

func (s *PostgresStore) Resume(ctx context.Context) (GlobalPolicy, error) {
	return s.setEnabled(ctx, true)
}

func (s *PostgresStore) setEnabled(ctx context.Context, enabled bool) (GlobalPolicy, error) {
	if err := s.ensureRow(ctx); err != nil {
		return GlobalPolicy{}, err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE global_policy SET session_creation_enabled = $1 WHERE id = 0
	`, enabled)
	if err != nil {
		return GlobalPolicy{}, apierr.InternalWrap("failed to update global policy", err)
	}
	return s.Get(ctx)
}
