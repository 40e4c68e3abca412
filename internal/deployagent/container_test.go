package deployagent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPrepareDockerfileGeneratesWhenMissing(t *testing.T) {
	buildDir := t.TempDir()

	agent, err := New(filepath.Join(buildDir, "artifacts"), filepath.Join(buildDir, "apps"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := agent.prepareDockerfile(buildDir, "vite", 80); err != nil {
		t.Fatalf("prepareDockerfile: %v", err)
	}

	contents, err := os.ReadFile(filepath.Join(buildDir, "Dockerfile"))
	if err != nil {
		t.Fatalf("read generated Dockerfile: %v", err)
	}
	if !strings.Contains(string(contents), "nginx") {
		t.Fatalf("expected generated vite Dockerfile to use nginx, got:\n%s", contents)
	}
}

func TestPrepareDockerfileSanitizesExisting(t *testing.T) {
	buildDir := t.TempDir()
	original := "FROM node:20\nUSER root\nEXPOSE 4000\n"
	if err := os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	agent, err := New(filepath.Join(buildDir, "artifacts"), filepath.Join(buildDir, "apps"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := agent.prepareDockerfile(buildDir, "express", 3000); err != nil {
		t.Fatalf("prepareDockerfile: %v", err)
	}

	contents, err := os.ReadFile(filepath.Join(buildDir, "Dockerfile"))
	if err != nil {
		t.Fatalf("read sanitized Dockerfile: %v", err)
	}
	if !strings.Contains(string(contents), "# sanitized: USER root") {
		t.Fatalf("expected USER root to be commented out, got:\n%s", contents)
	}
}

func TestCancelLogFollowerNoopWithoutDocker(t *testing.T) {
	root := t.TempDir()
	agent, err := New(filepath.Join(root, "artifacts"), filepath.Join(root, "apps"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	agent.ConfigureDocker(nil)

	// No follower was ever started for this project; cancelLogFollower must
	// not panic on the missing map entry.
	agent.cancelLogFollower("proj-never-started")
}
