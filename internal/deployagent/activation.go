package deployagent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/internal/acme"
	"github.com/shiplinehq/shipline/internal/artifact"
	"github.com/shiplinehq/shipline/internal/dockerengine"
	"github.com/shiplinehq/shipline/internal/nginxproxy"
)

// ActivationRequest is the input to Activate (spec §4.3, "Activation
// sequence for (project_id, build_id, port, framework, subdomain,
// env_vars)").
type ActivationRequest struct {
	ProjectID string
	BuildID   string
	Port      int
	Framework string
	Subdomain string
	EnvVars   map[string]string
}

// Agent runs process-mode activations for a single Deploy Engine host. It
// serializes activate/stop/delete per project via projectLocks, matching
// the teacher's one-mutex-per-resource pattern.
type Agent struct {
	artifactsDir string
	appsDir      string
	log          zerolog.Logger

	mu           sync.Mutex
	projectLocks map[string]*sync.Mutex

	staticMu      sync.Mutex
	staticServers map[string]*http.Server

	proxy            *nginxproxy.Manager
	acme             *acme.Issuer
	baseDomain       string
	acmeChallengeDir string
	production       bool

	docker       *dockerengine.Engine
	logFollowers map[string]context.CancelFunc
}

// New builds an Agent rooted at artifactsDir/appsDir, creating both if
// absent (spec §4.3, "creates both at startup").
func New(artifactsDir, appsDir string, log zerolog.Logger) (*Agent, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create apps dir: %w", err)
	}
	return &Agent{
		artifactsDir: artifactsDir,
		appsDir:      appsDir,
		log:          log,
		projectLocks: make(map[string]*sync.Mutex),
	}, nil
}

// ConfigureProxy wires a.Activate's step 9 ("Domain (production only)") to
// an nginx Manager and an optional ACME Issuer. Called once at startup when
// the Deploy Engine is not running behind a container orchestrator's own
// ingress; left unset, Activate and Delete skip proxy configuration
// entirely, matching process-mode's pre-proxy behavior.
func (a *Agent) ConfigureProxy(proxy *nginxproxy.Manager, issuer *acme.Issuer, baseDomain, acmeChallengeDir string, production bool) {
	a.proxy = proxy
	a.acme = issuer
	a.baseDomain = baseDomain
	a.acmeChallengeDir = acmeChallengeDir
	a.production = production
}

func (a *Agent) lockFor(projectID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.projectLocks[projectID]
	if !ok {
		l = &sync.Mutex{}
		a.projectLocks[projectID] = l
	}
	return l
}

// Activate runs the full process-mode activation sequence (spec §4.3 steps
// 1-9, steps 4-8 replaced entirely in container mode which is handled by
// internal/dockerengine instead).
func (a *Agent) Activate(ctx context.Context, req ActivationRequest) error {
	lock := a.lockFor(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	paths := NewProjectPaths(a.appsDir, req.ProjectID)

	// step 1: verify artifact exists
	artifactPath := ArtifactPath(a.artifactsDir, req.BuildID)
	if _, err := os.Stat(artifactPath); err != nil {
		return fmt.Errorf("artifact %s not found: %w", artifactPath, err)
	}

	// step 2: extract
	buildDir := paths.BuildDir(req.BuildID)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}
	if err := artifact.Extract(artifactPath, buildDir); err != nil {
		return fmt.Errorf("extract artifact: %w", err)
	}

	// step 3: atomic symlink rotation
	if err := os.WriteFile(paths.CurrentBuildIDFile(), []byte(req.BuildID), 0o644); err != nil {
		return fmt.Errorf("write current_build_id: %w", err)
	}
	if err := a.rotateCurrentSymlink(paths, buildDir); err != nil {
		return fmt.Errorf("rotate current symlink: %w", err)
	}

	if a.docker != nil {
		// container mode replaces steps 4-8 entirely
		if err := a.activateContainer(ctx, buildDir, req); err != nil {
			return err
		}
	} else {
		// step 4: stop prior process
		if err := a.stopPriorProcess(ctx, paths, req.Port); err != nil {
			return fmt.Errorf("stop prior process: %w", err)
		}

		// steps 5-7: prepare runtime and launch
		runtime, err := resolveRuntime(req.Framework, buildDir)
		if err != nil {
			return fmt.Errorf("resolve runtime: %w", err)
		}

		if runtime.NeedsStaticServer {
			if err := a.launchStaticServer(ctx, paths, buildDir, runtime, req); err != nil {
				return fmt.Errorf("launch static server: %w", err)
			}
		} else {
			if err := a.launchProcess(ctx, paths, buildDir, runtime, req); err != nil {
				return fmt.Errorf("launch process: %w", err)
			}
		}

		// step 8: health check
		if err := waitForHealthy(ctx, req.Port, 15*time.Second); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
	}

	// step 9: domain (production only); a proxy failure is a warning, not
	// an activation failure
	if err := a.configureDomain(ctx, req); err != nil {
		a.log.Warn().Err(err).Str("project_id", req.ProjectID).Msg("configure domain failed, activation continues")
	}

	return nil
}

// configureDomain applies the project's reverse-proxy vhost and, if an
// ACME issuer is configured, its TLS certificate (spec §4.3 step 9,
// "Domain (production only)"). It is a no-op outside production, without a
// subdomain, or when ConfigureProxy was never called.
func (a *Agent) configureDomain(ctx context.Context, req ActivationRequest) error {
	if !a.production || a.proxy == nil || req.Subdomain == "" {
		return nil
	}

	domain := fmt.Sprintf("%s.%s", req.Subdomain, a.baseDomain)
	vhost := nginxproxy.VHost{
		Subdomain:        req.Subdomain,
		Domain:           domain,
		Port:             req.Port,
		ACMEChallengeDir: a.acmeChallengeDir,
	}

	if a.acme != nil && a.acme.Enabled() {
		if !a.acme.Exists(domain) {
			if _, err := a.acme.Issue(domain); err != nil {
				return fmt.Errorf("issue certificate: %w", err)
			}
		}
		vhost.TLS = true
		vhost.CertPath, vhost.KeyPath = a.acme.CertPaths(domain)
	}

	return a.proxy.Apply(ctx, vhost)
}

// rotateCurrentSymlink implements spec §4.3 step 3: write a uniquely-named
// temp symlink, then rename it over "current" — an atomic replace on the
// same filesystem so no observer ever sees a missing "current".
func (a *Agent) rotateCurrentSymlink(paths *ProjectPaths, target string) error {
	tmp := paths.tempSymlinkName(time.Now().UnixNano())
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create temp symlink: %w", err)
	}
	if err := os.Rename(tmp, paths.Current()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp symlink over current: %w", err)
	}
	return nil
}

// Stop kills the project's running process or container (spec §4.3,
// "Stop. Kill the project's process or container; remove proxy
// configuration only on delete, not stop").
func (a *Agent) Stop(ctx context.Context, projectID string, port int) error {
	lock := a.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	if a.docker != nil {
		a.cancelLogFollower(projectID)
		return a.docker.EnsureStopped(ctx, projectID)
	}

	paths := NewProjectPaths(a.appsDir, projectID)
	return a.stopPriorProcess(ctx, paths, port)
}

// Delete stops the project, removes its tree and artifacts, per spec §4.3
// "Delete". buildIDs lists every build whose artifact tarball must be
// removed. subdomain, when non-empty, also removes the project's reverse
// proxy vhost. In container mode it also removes every image built for the
// project.
func (a *Agent) Delete(ctx context.Context, projectID string, port int, buildIDs []string, subdomain string) error {
	lock := a.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	paths := NewProjectPaths(a.appsDir, projectID)

	if a.docker != nil {
		a.cancelLogFollower(projectID)
		if err := a.docker.EnsureStopped(ctx, projectID); err != nil {
			a.log.Warn().Err(err).Str("project_id", projectID).Msg("stop during delete failed, continuing")
		}
		if err := a.docker.RemoveAllImages(ctx, projectID); err != nil {
			a.log.Warn().Err(err).Str("project_id", projectID).Msg("remove images during delete failed, continuing")
		}
	} else {
		if err := a.stopPriorProcess(ctx, paths, port); err != nil {
			a.log.Warn().Err(err).Str("project_id", projectID).Msg("stop during delete failed, continuing")
		}
	}

	if err := os.RemoveAll(paths.Root()); err != nil {
		return fmt.Errorf("remove project tree: %w", err)
	}

	if a.proxy != nil && subdomain != "" {
		if err := a.proxy.Remove(ctx, subdomain); err != nil {
			a.log.Warn().Err(err).Str("project_id", projectID).Msg("remove proxy vhost during delete failed, continuing")
		}
	}

	for _, buildID := range buildIDs {
		path := ArtifactPath(a.artifactsDir, buildID)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.log.Warn().Err(err).Str("path", path).Msg("failed to remove artifact during delete")
		}
	}

	return nil
}

// currentTargetDir resolves what "current" points at, used by the static
// file server and by callers that need the live build's directory.
func currentTargetDir(paths *ProjectPaths) (string, error) {
	return filepath.EvalSymlinks(paths.Current())
}
