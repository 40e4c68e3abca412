// Package workerapi implements the Build Worker: it dequeues build jobs
// one at a time (spec §4.2, "concurrency 1"), runs the per-job procedure
// (installation token exchange, clone, framework-dispatched build,
// artifact packaging and upload), and streams status/logs back to the
// Control Plane. Grounded on the teacher repo's internal/docker/runner.go
// streamOutput/exec pattern, generalized from a local container run to a
// networked build pipeline.
package workerapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/shiplinehq/shipline/internal/artifact"
	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/githubapp"
	"github.com/shiplinehq/shipline/internal/logsink"
	"github.com/shiplinehq/shipline/internal/pkgmgr"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/sourcefetch"
)

// buildCommandTimeout is a var rather than a const so tests can shrink it;
// production code never reassigns it.
var buildCommandTimeout = 5 * time.Minute

const sigtermGrace = 2 * time.Second

var compilationToolPattern = regexp.MustCompile(`\b(tsc|esbuild|swc|rollup|webpack|parcel)\b|vite build|next build|\btsup\b|\bunbuild\b|\bncc\b|(npm|bun|yarn|pnpm) run build`)

// frontendFrameworks are built and shipped as static assets.
var frontendFrameworks = map[string]bool{"nextjs": true, "vite": true}

// Worker consumes build jobs and drives one at a time through clone,
// build, and artifact handoff to the Deploy Engine.
type Worker struct {
	queue         *queue.Queue
	deployEngine  *deployer.Client
	github        *githubapp.Authenticator
	controlAPIURL string
	workspaceRoot string
	httpClient    *http.Client
	log           zerolog.Logger
}

// New builds a Worker. github may be nil when no GitHub App is configured;
// jobs carrying an installation_id then fail fast at token exchange.
func New(q *queue.Queue, deployEngine *deployer.Client, github *githubapp.Authenticator, controlAPIURL, workspaceRoot string, log zerolog.Logger) *Worker {
	return &Worker{
		queue:         q,
		deployEngine:  deployEngine,
		github:        github,
		controlAPIURL: controlAPIURL,
		workspaceRoot: workspaceRoot,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		log:           log,
	}
}

// Run dequeues and executes jobs one at a time until ctx is cancelled,
// matching the Build Worker's "strict concurrency 1" scheduling model
// (spec §5).
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("dequeue failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue // popTimeout elapsed with nothing pending
		}

		w.RunJob(ctx, job)
	}
}

// RunJob executes the per-job procedure for a single build (spec §4.2,
// "Per-job procedure"). It never returns an error: every failure is
// reported to the Control Plane as a build status transition and a
// level=error log line, per step 8.
func (w *Worker) RunJob(ctx context.Context, job *queue.BuildJob) {
	buildID := job.BuildID.String()
	sink := logsink.New(buildID, w.controlAPIURL)
	defer sink.Close()

	workspaceDir := filepath.Join(w.workspaceRoot, buildID)
	defer os.RemoveAll(workspaceDir)

	if err := w.putBuildStatus(ctx, buildID, "building"); err != nil {
		w.log.Error().Err(err).Str("build_id", buildID).Msg("failed to mark build building")
	}
	sink.Write("info", "starting build")

	if err := w.runJob(ctx, job, workspaceDir, sink); err != nil {
		sink.Write("error", err.Error())
		if statusErr := w.putBuildStatus(ctx, buildID, "failed"); statusErr != nil {
			w.log.Error().Err(statusErr).Str("build_id", buildID).Msg("failed to mark build failed")
		}
		if markErr := w.queue.MarkFailed(ctx, job.BuildID); markErr != nil {
			w.log.Error().Err(markErr).Str("build_id", buildID).Msg("failed to mark queue entry failed")
		}
		sink.Close()
		return
	}

	if err := w.putBuildStatus(ctx, buildID, "success"); err != nil {
		w.log.Error().Err(err).Str("build_id", buildID).Msg("failed to mark build success")
	}
	if err := w.queue.MarkCompleted(ctx, job.BuildID); err != nil {
		w.log.Error().Err(err).Str("build_id", buildID).Msg("failed to mark queue entry completed")
	}
	sink.Close()
}

func (w *Worker) runJob(ctx context.Context, job *queue.BuildJob, workspaceDir string, sink *logsink.Sink) error {
	buildID := job.BuildID.String()
	cloneURL := job.RepoURL

	if job.InstallationID != "" {
		if w.github == nil {
			return fmt.Errorf("installation token requested but no github app configured")
		}
		tok, err := w.github.CreateInstallationToken(ctx, job.InstallationID)
		if err != nil {
			return fmt.Errorf("obtain installation token: %w", err)
		}
		authed, err := githubapp.AuthenticatedCloneURL(job.RepoURL, tok.Token)
		if err != nil {
			return fmt.Errorf("build authenticated clone url: %w", err)
		}
		cloneURL = authed
	}

	branch := job.Branch
	if branch == "" {
		branch = "main"
	}
	sink.Write("info", "cloning repository")
	ws, err := sourcefetch.Clone(ctx, workspaceDir, cloneURL, branch)
	if err != nil {
		return fmt.Errorf("clone repository: %w", err)
	}

	projectDir := ws.RootDirectory(job.RootDirectory)
	env := buildEnv(job.EnvVars)
	isFrontend := frontendFrameworks[job.Framework]

	if isFrontend {
		sink.Write("info", "installing dependencies")
		if err := w.runCommand(ctx, projectDir, "bun install", env, sink); err != nil {
			return fmt.Errorf("install dependencies: %w", err)
		}
		sink.Write("info", "running build command")
		rewritten := pkgmgr.RewriteBuildCommand(job.BuildCommand)
		if err := w.runCommand(ctx, projectDir, rewritten, env, sink); err != nil {
			return fmt.Errorf("run build command: %w", err)
		}
	} else if w.backendNeedsBuild(projectDir, job.BuildCommand) {
		sink.Write("info", "installing dependencies")
		if err := w.runCommand(ctx, projectDir, "bun install", env, sink); err != nil {
			return fmt.Errorf("install dependencies: %w", err)
		}
		sink.Write("info", "running build command")
		rewritten := pkgmgr.RewriteBuildCommand(job.BuildCommand)
		if err := w.runCommand(ctx, projectDir, rewritten, env, sink); err != nil {
			return fmt.Errorf("run build command: %w", err)
		}
	} else {
		sink.Write("info", "shipping source as-is, no compilation step detected")
	}

	artifactPath := filepath.Join(os.TempDir(), buildID+".tar.gz")
	defer os.Remove(artifactPath)

	sink.Write("info", "packaging artifact")
	if err := artifact.Pack(projectDir, artifactPath, isFrontend); err != nil {
		return fmt.Errorf("package artifact: %w", err)
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open packaged artifact: %w", err)
	}
	defer f.Close()

	sink.Write("info", "uploading artifact to deploy engine")
	if err := w.deployEngine.UploadArtifact(ctx, buildID, f); err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}

	return nil
}

// backendNeedsBuild reports whether a backend project's build_command
// contains a compilation step that a package.json "scripts.build" entry
// backs up (spec §4.2 step 5, backend dispatch). Plucks the one field it
// needs with gjson rather than unmarshaling the whole manifest, since
// package.json shapes vary project to project.
func (w *Worker) backendNeedsBuild(projectDir, buildCommand string) bool {
	if !compilationToolPattern.MatchString(buildCommand) {
		return false
	}

	data, err := os.ReadFile(filepath.Join(projectDir, "package.json"))
	if err != nil {
		return false
	}
	return gjson.GetBytes(data, "scripts.build").Exists()
}

func buildEnv(jobEnv map[string]string) []string {
	env := os.Environ()
	for k, v := range jobEnv {
		env = append(env, k+"="+v)
	}
	return env
}

// runCommand spawns command through a shell in dir with a 5-minute
// wall-clock timeout, streaming stdout/stderr to sink as level=info lines
// with ANSI bytes preserved (spec §4.2, "Command execution"). On timeout
// it sends SIGTERM and reports a timeout-specific error.
func (w *Worker) runCommand(ctx context.Context, dir, command string, env []string, sink *logsink.Sink) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, buildCommandTimeout)
	defer cancel()

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attach stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command %q: %w", command, err)
	}

	go streamLines(stdout, sink)
	go streamLines(stderr, sink)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-timeoutCtx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-done:
		case <-time.After(sigtermGrace):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
		return fmt.Errorf("command timed out after 5 minutes")
	case err := <-done:
		if err != nil {
			return fmt.Errorf("command %q exited with error: %w", command, err)
		}
		return nil
	}
}

func streamLines(r io.Reader, sink *logsink.Sink) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink.Write("info", scanner.Text())
	}
}

// putBuildStatus transitions a build's status on the Control Plane (spec
// §4.2 steps 1, 7, 8).
func (w *Worker) putBuildStatus(ctx context.Context, buildID, status string) error {
	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/builds/%s", w.controlAPIURL, buildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put build status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("put build status: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
