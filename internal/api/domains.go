package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shiplinehq/shipline/internal/validate"
)

// CheckDomain reports whether a subdomain is free to bind to a new project
// (spec §6, "GET /domains/check?subdomain=…"). A subdomain that fails
// pattern validation or is reserved (spec §8 invariant 7) is never
// available, regardless of whether any project has claimed it.
func (h *Handlers) CheckDomain(c *gin.Context) {
	subdomain := strings.ToLower(strings.TrimSpace(c.Query("subdomain")))
	if subdomain == "" {
		badRequest(c, "subdomain query parameter is required")
		return
	}

	if !validate.Subdomain(subdomain) {
		c.JSON(http.StatusOK, gin.H{
			"subdomain": subdomain,
			"available": false,
		})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	projects, err := h.projects.ListProjects(ctx)
	if err != nil {
		internalError(c, err.Error())
		return
	}

	available := true
	for _, p := range projects {
		if p.Domain != nil && strings.ToLower(*p.Domain) == subdomain {
			available = false
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"subdomain": subdomain,
		"available": available,
	})
}
