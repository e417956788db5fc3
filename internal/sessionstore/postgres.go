package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

// PostgresStore is a Postgres-backed Session Store. Update runs the
// read-mutate-write cycle inside a transaction with `SELECT ... FOR UPDATE`,
// so the row is locked for the duration of the mutator and concurrent
// updates to the same session id serialize at the database level while
// updates to different sessions proceed independently.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection pool as a Session Store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the sessions table and its secondary indexes (by owner,
// by valid_until) if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			owner VARCHAR(255) NOT NULL,
			configuration_id VARCHAR(50) NOT NULL,
			status VARCHAR(32) NOT NULL,
			job_id VARCHAR(255) NOT NULL DEFAULT '',
			process_pid INTEGER NOT NULL DEFAULT -1,
			http_host VARCHAR(255) NOT NULL DEFAULT '',
			http_port INTEGER NOT NULL DEFAULT 0,
			created TIMESTAMPTZ NOT NULL,
			valid_until TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions (owner)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_valid_until ON sessions (valid_until)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sessions: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, owner, configuration_id, status, job_id, process_pid,
			http_host, http_port, created, valid_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, session.ID, session.Owner, session.ConfigurationID, string(session.Status),
		session.JobID, session.ProcessPID, session.HTTPHost, session.HTTPPort,
		session.Created, session.ValidUntil)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierr.Conflict("session " + session.ID + " already exists")
		}
		return apierr.InternalWrap("failed to insert session "+session.ID, err)
	}
	return nil
}

func scanSession(row *sql.Row) (Session, error) {
	var session Session
	var status string
	err := row.Scan(&session.ID, &session.Owner, &session.ConfigurationID, &status,
		&session.JobID, &session.ProcessPID, &session.HTTPHost, &session.HTTPPort,
		&session.Created, &session.ValidUntil)
	session.Status = Status(status)
	return session, err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, configuration_id, status, job_id, process_pid,
			http_host, http_port, created, valid_until
		FROM sessions WHERE id = $1
	`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, apierr.NotFound("session " + id)
	}
	if err != nil {
		return Session{}, apierr.InternalWrap("failed to get session "+id, err)
	}
	return session, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, mutator Mutator) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, apierr.InternalWrap("failed to begin transaction for session "+id, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, owner, configuration_id, status, job_id, process_pid,
			http_host, http_port, created, valid_until
		FROM sessions WHERE id = $1 FOR UPDATE
	`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, apierr.NotFound("session " + id)
	}
	if err != nil {
		return Session{}, apierr.InternalWrap("failed to read session "+id+" for update", err)
	}

	if err := mutator(&session); err != nil {
		return Session{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			owner = $1, configuration_id = $2, status = $3, job_id = $4,
			process_pid = $5, http_host = $6, http_port = $7, valid_until = $8
		WHERE id = $9
	`, session.Owner, session.ConfigurationID, string(session.Status), session.JobID,
		session.ProcessPID, session.HTTPHost, session.HTTPPort, session.ValidUntil, id)
	if err != nil {
		return Session{}, apierr.InternalWrap("failed to persist session "+id, err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, apierr.InternalWrap("failed to commit session update for "+id, err)
	}
	return session, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return apierr.InternalWrap("failed to delete session "+id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierr.NotFound("session " + id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Session, error) {
	return s.query(ctx, `
		SELECT id, owner, configuration_id, status, job_id, process_pid,
			http_host, http_port, created, valid_until
		FROM sessions ORDER BY created ASC
	`)
}

func (s *PostgresStore) ExpiredBefore(ctx context.Context, t time.Time) ([]Session, error) {
	return s.query(ctx, `
		SELECT id, owner, configuration_id, status, job_id, process_pid,
			http_host, http_port, created, valid_until
		FROM sessions WHERE valid_until < $1 ORDER BY valid_until ASC
	`, t)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...interface{}) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.InternalWrap("failed to query sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var session Session
		var status string
		if err := rows.Scan(&session.ID, &session.Owner, &session.ConfigurationID, &status,
			&session.JobID, &session.ProcessPID, &session.HTTPHost, &session.HTTPPort,
			&session.Created, &session.ValidUntil); err != nil {
			return nil, apierr.InternalWrap("failed to scan session row", err)
		}
		session.Status = Status(status)
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.InternalWrap("error iterating session rows", err)
	}
	return out, nil
}
