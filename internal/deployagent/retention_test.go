package deployagent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPruneStaleBuildsKeepsCurrentAndRecent(t *testing.T) {
	root := t.TempDir()
	artifactsDir := filepath.Join(root, "artifacts")
	appsDir := filepath.Join(root, "apps")

	agent, err := New(artifactsDir, appsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buildFixtureArtifact(t, artifactsDir, "build-old")
	buildFixtureArtifact(t, artifactsDir, "build-current")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := ActivationRequest{ProjectID: "proj-1", BuildID: "build-old", Port: freePort(t), Framework: "vite"}
	if err := agent.Activate(ctx, req); err != nil {
		t.Fatalf("activate build-old: %v", err)
	}
	if err := agent.Stop(ctx, req.ProjectID, req.Port); err != nil {
		t.Fatalf("stop: %v", err)
	}

	paths := NewProjectPaths(appsDir, "proj-1")
	oldBuildDir := paths.BuildDir("build-old")

	staleTime := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(oldBuildDir, staleTime, staleTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	req2 := ActivationRequest{ProjectID: "proj-1", BuildID: "build-current", Port: freePort(t), Framework: "vite"}
	if err := agent.Activate(ctx, req2); err != nil {
		t.Fatalf("activate build-current: %v", err)
	}
	defer agent.Stop(ctx, req2.ProjectID, req2.Port)

	if err := agent.PruneStaleBuilds(24 * time.Hour); err != nil {
		t.Fatalf("PruneStaleBuilds: %v", err)
	}

	if _, err := os.Stat(oldBuildDir); !os.IsNotExist(err) {
		t.Fatalf("expected stale build-old directory to be removed, stat err: %v", err)
	}
	if _, err := os.Stat(paths.BuildDir("build-current")); err != nil {
		t.Fatalf("expected current build directory to survive prune: %v", err)
	}
}
