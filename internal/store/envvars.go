package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpsertEnvironmentVariable inserts or updates a project's environment
// variable by key. The caller passes the already-encrypted storage form;
// this package never sees plaintext secret values.
func (s *Store) UpsertEnvironmentVariable(ctx context.Context, projectID uuid.UUID, key, ciphertext string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO environment_variables (project_id, key, value_ciphertext)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, key) DO UPDATE
			SET value_ciphertext = EXCLUDED.value_ciphertext, updated_at = now()`,
		projectID, key, ciphertext)
	if err != nil {
		return fmt.Errorf("upsert environment variable: %w", err)
	}
	return nil
}

// ListEnvironmentVariables returns a project's environment variables
// (ciphertext values; callers decrypt as needed).
func (s *Store) ListEnvironmentVariables(ctx context.Context, projectID uuid.UUID) ([]EnvironmentVariable, error) {
	var vars []EnvironmentVariable
	err := s.DB.SelectContext(ctx, &vars,
		`SELECT * FROM environment_variables WHERE project_id = $1 ORDER BY key ASC`, projectID)
	return vars, err
}

// DeleteEnvironmentVariable removes a single key from a project.
func (s *Store) DeleteEnvironmentVariable(ctx context.Context, projectID uuid.UUID, key string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM environment_variables WHERE project_id = $1 AND key = $2`, projectID, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
