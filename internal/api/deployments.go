package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/store"
)

// ActivateBuild promotes a successful build to the project's active
// deployment: it asks Deploy Engine to activate the build, then (only on
// success) records the new active deployment transactionally (spec §6,
// "POST /deploy/build/:id/activate"; §8 invariant 2 "exactly one active
// deployment per project").
func (h *Handlers) ActivateBuild(c *gin.Context) {
	buildID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	build, err := h.builds.GetBuild(ctx, buildID)
	if err != nil {
		respondStoreError(c, err, "build not found")
		return
	}
	if build.Status != store.BuildStatusSuccess {
		badRequest(c, "only a successful build can be activated")
		return
	}

	project, err := h.projects.GetProject(ctx, build.ProjectID)
	if err != nil {
		respondStoreError(c, err, "project not found")
		return
	}

	if err := h.activateProjectBuild(ctx, project, build); err != nil {
		upstreamFailure(c, err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// activateProjectBuild drives one activation: Deploy Engine call, then
// transactional promotion. Used both by the public activate endpoint and
// by auto-activation on a successful internal build-status PUT.
func (h *Handlers) activateProjectBuild(ctx context.Context, project *store.Project, build *store.Build) error {
	envVars, err := h.decryptedEnvMap(ctx, project.ID)
	if err != nil {
		return err
	}

	subdomain := ""
	if project.Domain != nil {
		subdomain = *project.Domain
	}

	if err := h.deployer.Activate(ctx, deployer.ActivateRequest{
		ProjectID: project.ID.String(),
		BuildID:   build.ID.String(),
		Port:      project.Port,
		Framework: string(project.Framework),
		Subdomain: subdomain,
		EnvVars:   envVars,
	}); err != nil {
		return err
	}

	if _, err := h.deployments.ActivateDeployment(ctx, project.ID, build.ID); err != nil {
		return err
	}

	if h.audit != nil {
		h.audit.RecordDeploymentAction(ctx, audit.ActorFromContext(ctx), audit.ActionDeploymentActivate, build.ID.String(), map[string]interface{}{"project_id": project.ID.String()})
	}
	return nil
}

// GetActiveDeployment returns a project's active deployment, or 404 if
// none (spec §6, "GET /projects/:id/deployment").
func (h *Handlers) GetActiveDeployment(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deployment, err := h.deployments.GetActiveDeployment(ctx, projectID)
	if err != nil {
		respondStoreError(c, err, "no active deployment")
		return
	}
	c.JSON(http.StatusOK, deployment)
}

// StopProject stops a project's running deployment via Deploy Engine and
// marks it inactive.
func (h *Handlers) StopProject(c *gin.Context) {
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

	if err := h.deployer.Stop(ctx, projectID.String(), project.Port); err != nil {
		upstreamFailure(c, err.Error())
		return
	}

	if err := h.deployments.DeactivateDeployment(ctx, projectID); err != nil {
		internalError(c, err.Error())
		return
	}

	if h.audit != nil {
		h.audit.RecordDeploymentAction(ctx, audit.ActorFromContext(ctx), audit.ActionDeploymentStop, projectID.String(), nil)
	}

	c.Status(http.StatusNoContent)
}
