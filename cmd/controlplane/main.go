// Command controlplane runs the Control Plane: the dashboard REST API,
// GitHub webhook ingress, build queue submission, and Deploy Engine
// orchestration (spec §4.1). Grounded on the teacher repo's
// cmd/glinrdockd/main.go bootstrap: load config, open the store, wire
// handlers into a gin engine, serve with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shiplinehq/shipline/internal/api"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/config"
	"github.com/shiplinehq/shipline/internal/crypto"
	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/githubapp"
	"github.com/shiplinehq/shipline/internal/logging"
	"github.com/shiplinehq/shipline/internal/metrics"
	"github.com/shiplinehq/shipline/internal/pubsub"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/store"
	"github.com/shiplinehq/shipline/internal/version"
	"github.com/shiplinehq/shipline/internal/webhook"
)

func main() {
	cfg := config.LoadControlPlane()
	logging.Setup("controlplane", cfg.LogLevel)

	masterKey, err := crypto.LoadMasterKeyFromEnv()
	if err != nil {
		log.Warn().Err(err).Msg("ENCRYPTION_KEY not configured, environment variables cannot be stored")
	}

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer s.Close()

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer q.Close()

	var githubAuth *githubapp.Authenticator
	if cfg.GitHubAppID != "" && cfg.GitHubAppPrivateKeyPath != "" {
		githubAuth, err = githubapp.NewAuthenticator(cfg.GitHubAppID, cfg.GitHubAppPrivateKeyPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load github app credentials")
		}
	} else {
		log.Warn().Msg("GITHUB_APP_ID / GITHUB_APP_PRIVATE_KEY_PATH not configured, github app features disabled")
	}

	deployClient := deployer.New(cfg.DeployEngineURL)
	hub := pubsub.NewHub()
	auditLogger := audit.New(s)
	collector := metrics.NewCollector()

	var webhookHandler *webhook.Handler
	if cfg.GitHubWebhookSecret != "" {
		webhookAdapter := api.NewWebhookAdapter(s, q, auditLogger, masterKey)
		webhookHandler = webhook.New(cfg.GitHubWebhookSecret, webhookAdapter, log.Logger)
	} else {
		log.Warn().Msg("GITHUB_WEBHOOK_SECRET not configured, github webhook ingress disabled")
	}

	handlers := api.NewHandlers(s, s, s, s, s, githubAuth, q, deployClient, hub, auditLogger, collector, masterKey, cfg.BaseDomain, cfg.Environment, log.Logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.SetupRoutes(r, handlers, cfg.AdminToken, cfg.CORSOrigins, webhookHandler)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	log.Info().Str("addr", cfg.HTTPAddr).Str("version", version.Get().Version).Msg("starting control plane")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down control plane")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("control plane exited")
}
