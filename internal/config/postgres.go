package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

// PostgresStore is a Postgres-backed Config Store.
//
// Writes are atomic: Create uses a plain INSERT (relying on the primary key
// constraint to reject duplicates), Update is a single UPDATE statement, so
// no partially-written row is ever observable.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection pool as a Config Store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the renderer_configs table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS renderer_configs (
			id VARCHAR(50) PRIMARY KEY,
			command_line VARCHAR(1024) NOT NULL DEFAULT '',
			environment_variables VARCHAR(4096) NOT NULL DEFAULT '',
			modules VARCHAR(4096) NOT NULL DEFAULT '',
			process_rest_parameters_format VARCHAR(1024) NOT NULL DEFAULT '',
			scheduler_rest_parameters_format VARCHAR(1024) NOT NULL DEFAULT '',
			graceful_exit BOOLEAN NOT NULL DEFAULT true,
			wait_until_running BOOLEAN NOT NULL DEFAULT false
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate renderer_configs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, cfg RendererConfig) error {
	if err := cfg.Validate(); err != nil {
		return apierr.InvalidArgument(err.Error())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renderer_configs (
			id, command_line, environment_variables, modules,
			process_rest_parameters_format, scheduler_rest_parameters_format,
			graceful_exit, wait_until_running
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, cfg.ID, cfg.CommandLine, cfg.EnvironmentVariables, cfg.Modules,
		cfg.ProcessRestParametersFormat, cfg.SchedulerRestParametersFormat,
		cfg.GracefulExit, cfg.WaitUntilRunning)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierr.Conflict("renderer config " + cfg.ID + " already exists")
		}
		return apierr.InternalWrap("failed to create renderer config "+cfg.ID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, cfg RendererConfig) error {
	if err := cfg.Validate(); err != nil {
		return apierr.InvalidArgument(err.Error())
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE renderer_configs SET
			command_line = $1,
			environment_variables = $2,
			modules = $3,
			process_rest_parameters_format = $4,
			scheduler_rest_parameters_format = $5,
			graceful_exit = $6,
			wait_until_running = $7
		WHERE id = $8
	`, cfg.CommandLine, cfg.EnvironmentVariables, cfg.Modules,
		cfg.ProcessRestParametersFormat, cfg.SchedulerRestParametersFormat,
		cfg.GracefulExit, cfg.WaitUntilRunning, cfg.ID)
	if err != nil {
		return apierr.InternalWrap("failed to update renderer config "+cfg.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierr.NotFound("renderer config " + cfg.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM renderer_configs WHERE id = $1`, id)
	if err != nil {
		return apierr.InternalWrap("failed to delete renderer config "+id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierr.NotFound("renderer config " + id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (RendererConfig, error) {
	var cfg RendererConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT id, command_line, environment_variables, modules,
			process_rest_parameters_format, scheduler_rest_parameters_format,
			graceful_exit, wait_until_running
		FROM renderer_configs WHERE id = $1
	`, id).Scan(&cfg.ID, &cfg.CommandLine, &cfg.EnvironmentVariables, &cfg.Modules,
		&cfg.ProcessRestParametersFormat, &cfg.SchedulerRestParametersFormat,
		&cfg.GracefulExit, &cfg.WaitUntilRunning)
	if err == sql.ErrNoRows {
		return RendererConfig{}, apierr.NotFound("renderer config " + id)
	}
	if err != nil {
		return RendererConfig{}, apierr.InternalWrap("failed to get renderer config "+id, err)
	}
	return cfg, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]RendererConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command_line, environment_variables, modules,
			process_rest_parameters_format, scheduler_rest_parameters_format,
			graceful_exit, wait_until_running
		FROM renderer_configs ORDER BY id ASC
	`)
	if err != nil {
		return nil, apierr.InternalWrap("failed to list renderer configs", err)
	}
	defer rows.Close()

	var out []RendererConfig
	for rows.Next() {
		var cfg RendererConfig
		if err := rows.Scan(&cfg.ID, &cfg.CommandLine, &cfg.EnvironmentVariables, &cfg.Modules,
			&cfg.ProcessRestParametersFormat, &cfg.SchedulerRestParametersFormat,
			&cfg.GracefulExit, &cfg.WaitUntilRunning); err != nil {
			return nil, apierr.InternalWrap("failed to scan renderer config row", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.InternalWrap("error iterating renderer config rows", err)
	}
	return out, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM renderer_configs`)
	if err != nil {
		return apierr.InternalWrap("failed to clear renderer configs", err)
	}
	return nil
}
