package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateBuild inserts a new build row in the pending state.
func (s *Store) CreateBuild(ctx context.Context, b *Build) error {
	b.Status = BuildStatusPending
	query := `
		INSERT INTO builds (project_id, status, commit_sha, commit_message)
		VALUES (:project_id, :status, :commit_sha, :commit_message)
		RETURNING id, created_at`

	rows, err := s.DB.NamedQueryContext(ctx, query, b)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&b.ID, &b.CreatedAt); err != nil {
			return fmt.Errorf("scan build id: %w", err)
		}
	}
	return rows.Err()
}

// GetBuild fetches a build by id.
func (s *Store) GetBuild(ctx context.Context, id uuid.UUID) (*Build, error) {
	var b Build
	err := s.DB.GetContext(ctx, &b, `SELECT * FROM builds WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &b, nil
}

// ListBuildsForProject returns a project's builds, newest first.
func (s *Store) ListBuildsForProject(ctx context.Context, projectID uuid.UUID, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 50
	}
	var builds []Build
	err := s.DB.SelectContext(ctx, &builds,
		`SELECT * FROM builds WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit)
	return builds, err
}

// TransitionBuildStatus advances a build's status. Per spec §8 invariant 3,
// a build already in a terminal state (success/failed) cannot transition
// again; callers that attempt this receive ErrTerminalBuild.
func (s *Store) TransitionBuildStatus(ctx context.Context, id uuid.UUID, next BuildStatus) error {
	current, err := s.GetBuild(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return ErrTerminalBuild
	}

	var query string
	var args []interface{}
	if next.IsTerminal() {
		query = `UPDATE builds SET status = $1, completed_at = now() WHERE id = $2`
		args = []interface{}{next, id}
	} else {
		query = `UPDATE builds SET status = $1 WHERE id = $2`
		args = []interface{}{next, id}
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update build status: %w", err)
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

// ListBuildIDsForProject returns every build id for a project, unbounded,
// used by project deletion to know what to cascade (spec §4.1, "Project
// deletion sequence" step 1, "collect build ids").
func (s *Store) ListBuildIDsForProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.DB.SelectContext(ctx, &ids, `SELECT id FROM builds WHERE project_id = $1`, projectID)
	return ids, err
}

// BuildExistsForCommit reports whether projectID already has a build for
// commitSHA, the idempotency check a webhook push uses before enqueuing
// another build for the same commit (spec §4.4 step 3).
func (s *Store) BuildExistsForCommit(ctx context.Context, projectID uuid.UUID, commitSHA string) (bool, error) {
	var exists bool
	err := s.DB.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM builds WHERE project_id = $1 AND commit_sha = $2)`,
		projectID, commitSHA)
	return exists, err
}

// SetBuildArtifact records the artifact id produced by a successful build.
func (s *Store) SetBuildArtifact(ctx context.Context, id uuid.UUID, artifactID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE builds SET artifact_id = $1 WHERE id = $2`, artifactID, id)
	return err
}
