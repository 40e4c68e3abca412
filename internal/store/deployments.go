package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ActivateDeployment deactivates the project's current active deployment
// (if any) and inserts a new active one for buildID, inside a single
// transaction. This is what enforces the "exactly one active deployment
// per project" invariant (spec §8 invariant 2) across the switchover
// instant, alongside the partial unique index in the schema.
func (s *Store) ActivateDeployment(ctx context.Context, projectID, buildID uuid.UUID) (*Deployment, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE deployments SET status = 'inactive' WHERE project_id = $1 AND status = 'active'`,
		projectID,
	); err != nil {
		return nil, fmt.Errorf("deactivate prior deployment: %w", err)
	}

	var d Deployment
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO deployments (project_id, build_id, status)
		VALUES ($1, $2, 'active')
		RETURNING id, project_id, build_id, status, activated_at`,
		projectID, buildID,
	).StructScan(&d)
	if err != nil {
		return nil, fmt.Errorf("insert deployment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &d, nil
}

// GetActiveDeployment returns the project's current active deployment, if
// any.
func (s *Store) GetActiveDeployment(ctx context.Context, projectID uuid.UUID) (*Deployment, error) {
	var d Deployment
	err := s.DB.GetContext(ctx, &d,
		`SELECT * FROM deployments WHERE project_id = $1 AND status = 'active'`, projectID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// ListDeploymentsForProject returns a project's deployment history, newest
// first.
func (s *Store) ListDeploymentsForProject(ctx context.Context, projectID uuid.UUID) ([]Deployment, error) {
	var deployments []Deployment
	err := s.DB.SelectContext(ctx, &deployments,
		`SELECT * FROM deployments WHERE project_id = $1 ORDER BY activated_at DESC`, projectID)
	return deployments, err
}

// DeactivateDeployment marks a project's active deployment inactive
// without activating a replacement, used when a project is stopped
// explicitly.
func (s *Store) DeactivateDeployment(ctx context.Context, projectID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE deployments SET status = 'inactive' WHERE project_id = $1 AND status = 'active'`,
		projectID)
	return err
}
