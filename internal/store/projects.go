package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateProject inserts a new project row. The caller is responsible for
// build_command and subdomain validation before calling this.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	query := `
		INSERT INTO projects (
			name, repo_url, repo_id, default_branch, root_directory,
			build_command, framework, domain, port, installation_id, auto_deploy
		) VALUES (
			:name, :repo_url, :repo_id, :default_branch, :root_directory,
			:build_command, :framework, :domain, :port, :installation_id, :auto_deploy
		)
		RETURNING id, created_at, updated_at`

	rows, err := s.DB.NamedQueryContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("scan project id: %w", err)
		}
	}
	return rows.Err()
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	err := s.DB.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// GetProjectByDomain fetches a project by its bound subdomain, used by the
// Deploy Engine's nginx/ACME flows to resolve a project from its vhost.
func (s *Store) GetProjectByDomain(ctx context.Context, domain string) (*Project, error) {
	var p Project
	err := s.DB.GetContext(ctx, &p, `SELECT * FROM projects WHERE domain = $1`, domain)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by most recently created.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := s.DB.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY created_at DESC`)
	return projects, err
}

// UpdateProject updates the mutable fields of a project.
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	query := `
		UPDATE projects SET
			name = :name,
			repo_url = :repo_url,
			default_branch = :default_branch,
			root_directory = :root_directory,
			build_command = :build_command,
			domain = :domain,
			auto_deploy = :auto_deploy,
			updated_at = now()
		WHERE id = :id`

	res, err := s.DB.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
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

// DeleteProject removes a project and, via ON DELETE CASCADE, all of its
// builds, deployments, log entries, and environment variables.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
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

// ProjectsForRepoAndBranch returns every project bound to repoID whose
// default_branch matches branch, the set a webhook push fans a build out
// to (spec §4.4 step 3).
func (s *Store) ProjectsForRepoAndBranch(ctx context.Context, repoID, branch string) ([]Project, error) {
	var projects []Project
	err := s.DB.SelectContext(ctx, &projects,
		`SELECT * FROM projects WHERE repo_id = $1 AND default_branch = $2`, repoID, branch)
	return projects, err
}

// NextAvailablePort returns the smallest integer >= minPort that is also
// greater than every existing project's port, used when provisioning a new
// project (spec §3, "Port allocation"). A gap below the highest assigned
// port is never filled; deleting the project that holds the highest port
// frees that port for the next allocation.
func (s *Store) NextAvailablePort(ctx context.Context, minPort, maxPort int) (int, error) {
	var maxUsed *int
	err := s.DB.GetContext(ctx, &maxUsed, `SELECT MAX(port) FROM projects WHERE port >= $1`, minPort)
	if err != nil {
		return 0, err
	}

	next := minPort
	if maxUsed != nil && *maxUsed+1 > next {
		next = *maxUsed + 1
	}
	if next > maxPort {
		return 0, fmt.Errorf("no available port in range %d-%d", minPort, maxPort)
	}
	return next, nil
}
