package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/store"
	"github.com/shiplinehq/shipline/internal/validate"
)

// CreateProjectRequest is the body of POST /projects (spec §6).
type CreateProjectRequest struct {
	Name                string            `json:"name" binding:"required"`
	GithubURL           string            `json:"github_url" binding:"required"`
	BuildCommand        string            `json:"build_command" binding:"required"`
	AppType             string            `json:"app_type" binding:"required"`
	RootDirectory       string            `json:"root_directory"`
	Domain              string            `json:"domain"`
	EnvVars             map[string]string `json:"env_vars"`
	GithubRepoID        string            `json:"github_repo_id"`
	GithubRepoFullName  string            `json:"github_repo_full_name"`
	GithubBranch        string            `json:"github_branch"`
	GithubInstallationID string           `json:"github_installation_id"`
	AutoDeploy          *bool             `json:"auto_deploy"`
}

// CreateProject allocates a port, validates the build command, and
// persists a new project (spec §4.1, §6 "POST /projects").
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	framework := store.Framework(req.AppType)
	if !framework.IsValid() {
		badRequest(c, "unsupported app_type: "+req.AppType)
		return
	}

	if err := validate.BuildCommand(req.BuildCommand); err != nil {
		badRequest(c, err.Error())
		return
	}

	if req.Domain != "" {
		if err := validate.SubdomainError(req.Domain); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	port, err := h.allocatePort(ctx)
	if err != nil {
		upstreamFailure(c, err.Error())
		return
	}

	branch := req.GithubBranch
	if branch == "" {
		branch = "main"
	}

	project := &store.Project{
		Name:          req.Name,
		RepoURL:       req.GithubURL,
		DefaultBranch: branch,
		RootDirectory: req.RootDirectory,
		BuildCommand:  req.BuildCommand,
		Framework:     framework,
		Port:          port,
		AutoDeploy:    req.AutoDeploy == nil || *req.AutoDeploy,
	}
	if req.GithubRepoID != "" {
		project.RepoID = &req.GithubRepoID
	}
	if req.Domain != "" {
		project.Domain = &req.Domain
	}
	if req.GithubInstallationID != "" {
		if instID, err := uuid.Parse(req.GithubInstallationID); err == nil {
			project.InstallationID = &instID
		}
	}

	if err := h.projects.CreateProject(ctx, project); err != nil {
		badRequest(c, err.Error())
		return
	}

	for key, value := range req.EnvVars {
		ciphertext, err := h.encryptEnvValue(value)
		if err != nil {
			h.log.Error().Err(err).Msg("failed to encrypt initial env var, skipping")
			continue
		}
		if err := h.envVars.UpsertEnvironmentVariable(ctx, project.ID, key, ciphertext); err != nil {
			h.log.Error().Err(err).Str("key", key).Msg("failed to persist initial env var")
		}
	}

	if h.audit != nil {
		h.audit.RecordProjectAction(ctx, audit.ActorFromContext(ctx), audit.ActionProjectCreate, project.ID.String(), map[string]interface{}{
			"name": project.Name,
			"port": project.Port,
		})
	}

	c.JSON(http.StatusCreated, project)
}

const maxPortAllocationAttempts = 1000

// allocatePort finds the next port above the highest already-assigned one,
// confirming with Deploy Engine that it's actually free before assigning it
// (spec §4.1, "Port allocation": "next = max(assigned_port, base=8000) + 1;
// loop, asking Deploy Engine ports/check until free"). Deploy Engine being
// unreachable fails project creation outright rather than guessing.
func (h *Handlers) allocatePort(ctx context.Context) (int, error) {
	candidate, err := h.projects.NextAvailablePort(ctx, minAllocatablePort, maxAllocatablePort)
	if err != nil {
		return 0, fmt.Errorf("find candidate port: %w", err)
	}

	for attempt := 0; attempt < maxPortAllocationAttempts; attempt++ {
		port := candidate + attempt
		free, err := h.deployer.CheckPortFree(ctx, port)
		if err != nil {
			return 0, fmt.Errorf("deploy engine unreachable while checking port %d: %w", port, err)
		}
		if free {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found after %d attempts starting at %d", maxPortAllocationAttempts, candidate)
}

// ListProjects returns every project (spec §6, "GET /projects").
func (h *Handlers) ListProjects(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	projects, err := h.projects.ListProjects(ctx)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.UUID{}, false
	}
	return id, true
}

// GetProject returns a single project (spec §6, "GET /projects/:id").
func (h *Handlers) GetProject(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	project, err := h.projects.GetProject(ctx, id)
	if err != nil {
		respondStoreError(c, err, "project not found")
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProjectRequest is the (partial) body of PUT /projects/:id.
type UpdateProjectRequest struct {
	Name          *string `json:"name"`
	BuildCommand  *string `json:"build_command"`
	RootDirectory *string `json:"root_directory"`
	Domain        *string `json:"domain"`
	AutoDeploy    *bool   `json:"auto_deploy"`
}

// UpdateProject partially updates a project, re-validating build_command
// against the allow-list if it was supplied (spec §4.1, "update (partial;
// validates build_command against an allow-list)").
func (h *Handlers) UpdateProject(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	project, err := h.projects.GetProject(ctx, id)
	if err != nil {
		respondStoreError(c, err, "project not found")
		return
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.BuildCommand != nil {
		if err := validate.BuildCommand(*req.BuildCommand); err != nil {
			badRequest(c, err.Error())
			return
		}
		project.BuildCommand = *req.BuildCommand
	}
	if req.RootDirectory != nil {
		project.RootDirectory = *req.RootDirectory
	}
	if req.Domain != nil {
		if *req.Domain != "" {
			if err := validate.SubdomainError(*req.Domain); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		project.Domain = req.Domain
	}
	if req.AutoDeploy != nil {
		project.AutoDeploy = *req.AutoDeploy
	}

	if err := h.projects.UpdateProject(ctx, project); err != nil {
		respondStoreError(c, err, "project not found")
		return
	}

	if h.audit != nil {
		h.audit.RecordProjectAction(ctx, audit.ActorFromContext(ctx), audit.ActionProjectUpdate, project.ID.String(), nil)
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject runs the project deletion sequence: best-effort Deploy
// Engine teardown, then a transactional cascade delete (spec §4.1,
// "Project deletion sequence").
func (h *Handlers) DeleteProject(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	project, err := h.projects.GetProject(ctx, id)
	if err != nil {
		respondStoreError(c, err, "project not found")
		return
	}

	ids, err := h.builds.ListBuildIDsForProject(ctx, id)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	buildIDs := make([]string, len(ids))
	for i, bid := range ids {
		buildIDs[i] = bid.String()
	}

	subdomain := ""
	if project.Domain != nil {
		subdomain = *project.Domain
	}
	if err := h.deployer.DeleteProject(ctx, id.String(), project.Port, buildIDs, subdomain); err != nil {
		h.log.Warn().Err(err).Str("project_id", id.String()).Msg("deploy engine project delete failed, proceeding with record deletion")
	}

	if err := h.projects.DeleteProject(ctx, id); err != nil {
		respondStoreError(c, err, "project not found")
		return
	}

	if _, err := h.projects.GetProject(ctx, id); err == nil {
		internalError(c, "project row still present after delete")
		return
	}

	if h.audit != nil {
		h.audit.RecordProjectAction(ctx, audit.ActorFromContext(ctx), audit.ActionProjectDelete, id.String(), nil)
	}

	c.Status(http.StatusNoContent)
}
