// Command deployengine runs the Deploy Engine: it extracts build
// artifacts, activates them as a running process or container, and
// manages the reverse proxy and TLS certificates for production domains
// (spec §4.3). Grounded on the teacher repo's cmd/glinrdockd/main.go
// bootstrap shape, adapted to a chi router instead of gin since this
// binary's HTTP surface is small and internal-only.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/shiplinehq/shipline/internal/acme"
	"github.com/shiplinehq/shipline/internal/agentapi"
	"github.com/shiplinehq/shipline/internal/config"
	"github.com/shiplinehq/shipline/internal/deployagent"
	"github.com/shiplinehq/shipline/internal/dockerengine"
	"github.com/shiplinehq/shipline/internal/logging"
	"github.com/shiplinehq/shipline/internal/nginxproxy"
)

func main() {
	cfg := config.LoadDeployEngine()
	logging.Setup("deployengine", cfg.LogLevel)

	agent, err := deployagent.New(cfg.ArtifactsDir, cfg.AppsDir, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize deploy agent")
	}

	production := cfg.NodeEnv == "production"
	proxy := nginxproxy.NewManager(cfg.NginxSitesDir, cfg.NginxEnabledDir, log.Logger)
	issuer := acme.New(acme.Config{
		Email:        cfg.ACMEEmail,
		DirectoryURL: cfg.ACMEDirectoryURL,
		ChallengeDir: cfg.ACMEChallengeDir,
		CertDir:      cfg.ACMECertDir,
	})
	agent.ConfigureProxy(proxy, issuer, cfg.BaseDomain, cfg.ACMEChallengeDir, production)

	var engine *dockerengine.Engine
	if cfg.UseDocker {
		engine, err = dockerengine.New()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize docker engine")
		}
		agent.ConfigureDocker(engine)

		recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := agent.RecoverContainers(recoverCtx); err != nil {
			log.Warn().Err(err).Msg("container recovery on startup failed, continuing")
		}
		cancel()
	}

	scheduler := cron.New()

	if _, err := scheduler.AddFunc("0 3 * * *", func() {
		if err := agent.PruneStaleBuilds(7 * 24 * time.Hour); err != nil {
			log.Warn().Err(err).Msg("stale build prune failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule stale build prune")
	}

	if issuer.Enabled() {
		if _, err := scheduler.AddFunc("0 4 * * *", func() {
			domains, err := issuer.KnownDomains()
			if err != nil {
				log.Warn().Err(err).Msg("certificate renewal sweep: list known domains failed")
				return
			}
			for _, domain := range domains {
				renewed, err := issuer.RenewIfNeeded(domain, 30*24*time.Hour)
				if err != nil {
					log.Warn().Err(err).Str("domain", domain).Msg("certificate renewal failed")
					continue
				}
				if renewed {
					log.Info().Str("domain", domain).Msg("certificate renewed")
				}
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("failed to schedule certificate renewal sweep")
		}
	}

	if cfg.UseDocker {
		if _, err := scheduler.AddFunc("0 * * * *", func() {
			if err := engine.SweepOrphanedImages(context.Background()); err != nil {
				log.Warn().Err(err).Msg("orphaned image sweep failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("failed to schedule orphaned image sweep")
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	handlers := agentapi.New(agent, cfg.ArtifactsDir, log.Logger)

	r := chi.NewRouter()
	agentapi.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	log.Info().Str("addr", cfg.HTTPAddr).Bool("use_docker", cfg.UseDocker).Msg("starting deploy engine")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down deploy engine")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("deploy engine exited")
}
