package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/store"
)

// CreateBuild creates a pending build for a project and enqueues a build
// job, translating the project + a decrypted env snapshot into a
// BuildJobData (spec §4.1, "Queue submission"). A queue-submission
// failure marks the build failed immediately with an explanatory log
// rather than leaving it stuck pending.
func (h *Handlers) CreateBuild(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	project, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		respondStoreError(c, err, "project not found")
		return
	}

	build := &store.Build{ProjectID: projectID}
	if err := h.builds.CreateBuild(ctx, build); err != nil {
		internalError(c, err.Error())
		return
	}

	envVars, err := h.decryptedEnvMap(ctx, projectID)
	if err != nil {
		h.failBuildAtSubmission(ctx, build, "failed to decrypt environment variables: "+err.Error())
		c.JSON(http.StatusCreated, build)
		return
	}

	job := &queue.BuildJob{
		BuildID:       build.ID,
		ProjectID:     project.ID,
		RepoURL:       project.RepoURL,
		RootDirectory: project.RootDirectory,
		BuildCommand:  project.BuildCommand,
		Framework:     string(project.Framework),
		Branch:        project.DefaultBranch,
		EnvVars:       envVars,
	}
	if project.InstallationID != nil {
		job.InstallationID = project.InstallationID.String()
	}

	if err := h.queue.Enqueue(ctx, job); err != nil {
		h.failBuildAtSubmission(ctx, build, "failed to enqueue build job: "+err.Error())
		c.JSON(http.StatusCreated, build)
		return
	}

	if h.audit != nil {
		h.audit.RecordBuildAction(ctx, audit.ActorFromContext(ctx), audit.ActionBuildTriggered, build.ID.String(), map[string]interface{}{"project_id": project.ID.String()})
	}

	c.JSON(http.StatusCreated, build)
}

func (h *Handlers) failBuildAtSubmission(ctx context.Context, build *store.Build, reason string) {
	if err := h.builds.TransitionBuildStatus(ctx, build.ID, store.BuildStatusFailed); err != nil {
		h.log.Error().Err(err).Str("build_id", build.ID.String()).Msg("failed to mark build failed after queue-submission failure")
	}
	build.Status = store.BuildStatusFailed
	if err := h.builds.AppendLogEntries(ctx, []store.LogEntry{{BuildID: build.ID, Level: store.LogLevelError, Message: reason}}); err != nil {
		h.log.Error().Err(err).Str("build_id", build.ID.String()).Msg("failed to log queue-submission failure")
	}
}

// ListBuilds returns a project's builds, newest first (spec §6, "GET
// /projects/:id/builds").
func (h *Handlers) ListBuilds(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	builds, err := h.builds.ListBuildsForProject(ctx, projectID, 50)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": builds})
}

// GetBuild returns a single build by id (spec §6, "GET /builds/:id").
func (h *Handlers) GetBuild(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	build, err := h.builds.GetBuild(ctx, id)
	if err != nil {
		respondStoreError(c, err, "build not found")
		return
	}
	c.JSON(http.StatusOK, build)
}

// GetBuildLogs returns a build's log lines in chronological order (spec
// §6, "GET /builds/:id/logs").
func (h *Handlers) GetBuildLogs(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.builds.ListLogEntries(ctx, id)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, entries)
}

// DeleteBuildLogs clears a build's log history (spec §6, "DELETE
// /builds/:id/logs").
func (h *Handlers) DeleteBuildLogs(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.builds.DeleteLogEntries(ctx, id); err != nil {
		internalError(c, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
