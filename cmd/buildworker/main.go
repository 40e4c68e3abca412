// Command buildworker runs the Build Worker: it dequeues one build job at a
// time from Redis and drives it through clone, build, and artifact handoff
// to the Deploy Engine (spec §4.2). Grounded on the teacher repo's
// cmd/glinrdockd/main.go bootstrap shape, adapted from an HTTP-first
// process to one whose main loop is a queue consumer with a small HTTP
// side-surface for health checks and the fallback trigger.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/shiplinehq/shipline/internal/config"
	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/githubapp"
	"github.com/shiplinehq/shipline/internal/logging"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/workerapi"
)

func main() {
	cfg := config.LoadBuildWorker()
	logging.Setup("buildworker", cfg.LogLevel)

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
		log.Warn().Msg("GITHUB_APP_ID / GITHUB_APP_PRIVATE_KEY_PATH not configured, installation-token clones disabled")
	}

	deployClient := deployer.New(cfg.DeployEngineURL)
	worker := workerapi.New(q, deployClient, githubAuth, cfg.ControlAPIURL, cfg.WorkspaceRoot, log.Logger)

	r := chi.NewRouter()
	workerapi.MountRoutes(r, workerapi.NewHandlers(worker, log.Logger))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	ctx, cancelRun := context.WithCancel(context.Background())
	go worker.Run(ctx)

	log.Info().Str("addr", cfg.HTTPAddr).Msg("starting build worker")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down build worker")
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("build worker exited")
}
