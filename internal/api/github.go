package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListInstallations returns every recorded GitHub App installation (spec
// §6, "GET /github/installations").
func (h *Handlers) ListInstallations(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	installations, err := h.installations.ListInstallations(ctx)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"installations": installations})
}

// ListInstallationRepositories lists the repositories an installation can
// access (spec §6, "GET /github/installations/:id/repositories").
func (h *Handlers) ListInstallationRepositories(c *gin.Context) {
	installationID := c.Param("id")
	if installationID == "" {
		badRequest(c, "missing installation id")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	repos, err := h.github.ListRepositories(ctx, installationID)
	if err != nil {
		upstreamFailure(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"repositories": repos})
}
