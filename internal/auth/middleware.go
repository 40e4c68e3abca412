// Package auth guards the Control Plane's dashboard-facing REST surface
// with a single bearer admin token, ported from the teacher repo's legacy
// internal/auth/middleware.go. Shipline has no per-user roles (spec §4.1
// describes one authenticated operator surface, not a multi-tenant one),
// so the teacher's richer token-store/session/OAuth machinery doesn't
// have anywhere to attach and isn't carried over.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAdminToken rejects any request whose Authorization header isn't
// "Bearer <adminToken>".
func RequireAdminToken(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "admin token not configured"})
			c.Abort()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		if strings.TrimPrefix(header, "Bearer ") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
