package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shiplinehq/shipline/internal/auth"
	"github.com/shiplinehq/shipline/internal/webhook"
)

// SetupRoutes wires every Control Plane endpoint (spec §6) into a gin
// engine: a dashboard surface behind the admin bearer token, an
// unauthenticated internal surface reachable only from the private
// network the Build Worker and Deploy Engine run on, and the webhook
// ingress route. Modeled on the teacher repo's internal/api/routes.go
// route-group layout.
func SetupRoutes(r *gin.Engine, handlers *Handlers, adminToken string, corsOrigins []string, webhookHandler *webhook.Handler) {
	if len(corsOrigins) > 0 {
		config := cors.DefaultConfig()
		config.AllowOrigins = corsOrigins
		config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
		r.Use(cors.New(config))
	}

	r.GET("/health", handlers.Health)
	r.HEAD("/health", handlers.Health)

	if webhookHandler != nil {
		webhookLimiter := NewIPRateLimiter(webhookRatePerSecond, webhookBurst)
		r.POST("/github/webhook", webhookLimiter.Middleware(), gin.WrapH(webhookHandler))
	}

	dashboard := r.Group("")
	dashboard.Use(auth.RequireAdminToken(adminToken))
	{
		projects := dashboard.Group("/projects")
		{
			projects.POST("", handlers.CreateProject)
			projects.GET("", handlers.ListProjects)
			projects.GET("/:id", handlers.GetProject)
			projects.PUT("/:id", handlers.UpdateProject)
			projects.DELETE("/:id", handlers.DeleteProject)

			projects.GET("/:id/builds", handlers.ListBuilds)
			projects.POST("/:id/builds", handlers.CreateBuild)
			projects.GET("/:id/deployment", handlers.GetActiveDeployment)
			projects.POST("/:id/stop", handlers.StopProject)

			projects.GET("/:id/env", handlers.ListEnvVars)
			projects.POST("/:id/env", handlers.SetEnvVar)
			projects.DELETE("/:id/env/:key", handlers.DeleteEnvVar)
		}

		builds := dashboard.Group("/builds")
		{
			builds.GET("/:id", handlers.GetBuild)
			builds.GET("/:id/logs", handlers.GetBuildLogs)
			builds.DELETE("/:id/logs", handlers.DeleteBuildLogs)
			builds.GET("/:id/logs/stream", handlers.BuildLogStream)
			builds.DELETE("/queue", handlers.DeleteBuildQueue)
		}

		dashboard.POST("/deploy/build/:id/activate", handlers.ActivateBuild)
		dashboard.GET("/domains/check", handlers.CheckDomain)
		dashboard.GET("/system/metrics", handlers.SystemMetrics)

		github := dashboard.Group("/github")
		{
			github.GET("/installations", handlers.ListInstallations)
			github.GET("/installations/:id/repositories", handlers.ListInstallationRepositories)
		}
	}

	// Internal surface: unauthenticated, reachable only from the private
	// network the Build Worker and Deploy Engine run on (spec §6, "Control
	// Plane internal (unauth; network-segmented)"). Registered on methods
	// that never collide with the dashboard group's routes above.
	r.POST("/builds/:id/logs", handlers.PostBuildLog)
	r.PUT("/builds/:id", handlers.PutBuildStatus)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
