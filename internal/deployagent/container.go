package deployagent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shiplinehq/shipline/internal/dockerengine"
)

// ConfigureDocker switches the Agent into container mode (spec §4.3,
// "Container mode"), replacing steps 4-8 of Activate with a Docker build
// and run, and Stop/Delete with container teardown. Left unset, the Agent
// stays in process mode.
func (a *Agent) ConfigureDocker(engine *dockerengine.Engine) {
	a.docker = engine
	a.logFollowers = make(map[string]context.CancelFunc)
}

// activateContainer implements spec §4.3's container-mode replacement for
// steps 4-8: stop any existing container, sanitize or generate a
// Dockerfile, build an image, run it detached, health-check it, start a
// background log follower, and prune older images for the project.
func (a *Agent) activateContainer(ctx context.Context, buildDir string, req ActivationRequest) error {
	if err := a.docker.EnsureStopped(ctx, req.ProjectID); err != nil {
		return fmt.Errorf("ensure prior container stopped: %w", err)
	}
	a.cancelLogFollower(req.ProjectID)

	internalPort := 3000
	if req.Framework == "vite" {
		internalPort = 80
	}

	if err := a.prepareDockerfile(buildDir, req.Framework, internalPort); err != nil {
		return fmt.Errorf("prepare dockerfile: %w", err)
	}

	imageTag := dockerengine.ImageTag(req.ProjectID, req.BuildID)
	if err := a.docker.BuildImageFromDir(ctx, buildDir, imageTag); err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	containerID, err := a.docker.Run(ctx, dockerengine.RunSpec{
		ProjectID:    req.ProjectID,
		BuildID:      req.BuildID,
		ImageTag:     imageTag,
		HostPort:     req.Port,
		InternalPort: internalPort,
		EnvVars:      req.EnvVars,
	})
	if err != nil {
		return fmt.Errorf("run container: %w", err)
	}

	if err := waitForHealthy(ctx, req.Port, 30*time.Second); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	a.startLogFollower(req.ProjectID, containerID)

	if err := a.docker.PruneImages(ctx, req.ProjectID); err != nil {
		a.log.Warn().Err(err).Str("project_id", req.ProjectID).Msg("image prune failed, continuing")
	}

	return nil
}

// prepareDockerfile writes a sanitized copy of buildDir's own Dockerfile,
// or a generated one when none exists (spec §4.3, "Container mode").
func (a *Agent) prepareDockerfile(buildDir, framework string, internalPort int) error {
	path := filepath.Join(buildDir, "Dockerfile")

	existing, err := os.ReadFile(path)
	if err == nil {
		sanitized := dockerengine.SanitizeDockerfile(string(existing), internalPort)
		return os.WriteFile(path, []byte(sanitized), 0o644)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("read dockerfile: %w", err)
	}

	generated, err := dockerengine.GenerateDockerfile(framework, internalPort)
	if err != nil {
		return fmt.Errorf("generate dockerfile: %w", err)
	}
	return os.WriteFile(path, []byte(generated), 0o644)
}

// startLogFollower tails a running container's combined output into the
// Deploy Engine's own log, tracked per project so a later stop/delete can
// cancel it (spec §4.3, "start a background log follower... register it in
// a project_id -> cancel map").
func (a *Agent) startLogFollower(projectID, containerID string) {
	followCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.logFollowers[projectID] = cancel
	a.mu.Unlock()

	go func() {
		logs, err := a.docker.Logs(followCtx, containerID)
		if err != nil {
			if followCtx.Err() == nil {
				a.log.Warn().Err(err).Str("project_id", projectID).Msg("attach container log follower failed")
			}
			return
		}
		defer logs.Close()

		buf := make([]byte, 32*1024)
		for {
			n, err := logs.Read(buf)
			if n > 0 {
				a.log.Info().Str("project_id", projectID).Str("container_id", containerID).Msg(string(buf[:n]))
			}
			if err != nil {
				if err != io.EOF && followCtx.Err() == nil {
					a.log.Warn().Err(err).Str("project_id", projectID).Msg("container log follower stopped")
				}
				return
			}
		}
	}()
}

func (a *Agent) cancelLogFollower(projectID string) {
	a.mu.Lock()
	cancel, ok := a.logFollowers[projectID]
	if ok {
		delete(a.logFollowers, projectID)
	}
	a.mu.Unlock()

	if ok {
		cancel()
	}
}

// RecoverContainers re-attaches log followers for every container still
// running from a prior process, per spec §4.3's "Recovery on startup
// (container mode)". Call once at Deploy Engine startup when container
// mode is enabled.
func (a *Agent) RecoverContainers(ctx context.Context) error {
	if a.docker == nil {
		return nil
	}

	running, err := a.docker.RunningProjectContainers(ctx)
	if err != nil {
		return fmt.Errorf("list running containers: %w", err)
	}

	for _, c := range running {
		a.startLogFollower(c.ProjectID, c.ContainerID)
	}
	return nil
}
