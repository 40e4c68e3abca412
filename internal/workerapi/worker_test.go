package workerapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/logsink"
	"github.com/shiplinehq/shipline/internal/queue"
)

func TestBackendNeedsBuildRequiresCompilationToolAndBuildScript(t *testing.T) {
	dir := t.TempDir()
	pkgJSON := `{"scripts":{"build":"tsc","start":"node dist/index.js"}}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkgJSON), 0o644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}

	w := &Worker{log: zerolog.Nop()}
	if !w.backendNeedsBuild(dir, "npm run build") {
		t.Fatalf("expected backend with tsc+build script to need build")
	}
	if w.backendNeedsBuild(dir, "node index.js") {
		t.Fatalf("expected plain node start command to skip build")
	}
}

func TestBackendNeedsBuildFalseWithoutBuildScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts":{"start":"node index.js"}}`), 0o644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}

	w := &Worker{log: zerolog.Nop()}
	if w.backendNeedsBuild(dir, "tsc") {
		t.Fatalf("expected no build without a scripts.build entry")
	}
}

func TestRunCommandSucceeds(t *testing.T) {
	w := &Worker{log: zerolog.Nop()}
	sink := logsink.New("test-build", discardServer(t))
	defer sink.Close()

	if err := w.runCommand(context.Background(), t.TempDir(), "echo hello", os.Environ(), sink); err != nil {
		t.Fatalf("expected command to succeed, got: %v", err)
	}
}

func TestRunCommandFailsOnNonZeroExit(t *testing.T) {
	w := &Worker{log: zerolog.Nop()}
	sink := logsink.New("test-build", discardServer(t))
	defer sink.Close()

	if err := w.runCommand(context.Background(), t.TempDir(), "exit 1", os.Environ(), sink); err == nil {
		t.Fatalf("expected non-zero exit to return an error")
	}
}

func TestRunCommandTimesOut(t *testing.T) {
	w := &Worker{log: zerolog.Nop()}
	sink := logsink.New("test-build", discardServer(t))
	defer sink.Close()

	previous := buildCommandTimeout
	buildCommandTimeout = 10 * time.Millisecond
	defer func() { buildCommandTimeout = previous }()

	err := w.runCommand(context.Background(), t.TempDir(), "sleep 5", os.Environ(), sink)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

// initGitRepo creates a minimal git repository on disk with a single
// commit on "main", used to exercise sourcefetch.Clone the same way it
// would clone a real remote.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	run("add", ".")
	run("commit", "-m", "initial")
}

// discardServer starts an httptest server that accepts and discards any
// request, standing in for the Control Plane's internal log endpoint.
func discardServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunJobEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var statuses []string
	var uploaded bool

	controlPlane := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if r.Method == http.MethodPut {
			statuses = append(statuses, "put")
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer controlPlane.Close()

	deployEngine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		uploaded = true
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer deployEngine.Close()

	repoDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(repoDir, "index.js"), []byte("console.log('ok')"), 0o644); err != nil {
		t.Fatalf("seed repo: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, "package.json"), []byte(`{"scripts":{"start":"node index.js"}}`), 0o644); err != nil {
		t.Fatalf("seed repo: %v", err)
	}
	initGitRepo(t, repoDir)

	w := New(nil, deployer.New(deployEngine.URL), nil, controlPlane.URL, t.TempDir(), zerolog.Nop())

	job := &queue.BuildJob{
		BuildID:      uuid.New(),
		ProjectID:    uuid.New(),
		RepoURL:      "file://" + repoDir,
		Branch:       "main",
		BuildCommand: "echo building",
		Framework:    "express",
	}

	workspaceDir := filepath.Join(t.TempDir(), job.BuildID.String())
	sink := logsink.New(job.BuildID.String(), controlPlane.URL)
	err := w.runJob(context.Background(), job, workspaceDir, sink)
	sink.Close()
	if err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !uploaded {
		t.Fatalf("expected artifact to be uploaded to deploy engine")
	}
}
