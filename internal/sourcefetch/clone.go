// Package sourcefetch clones project source into an isolated Build Worker
// workspace directory. Grounded on the teacher repo's
// internal/docker/runner.go cloneRepo helper, generalized to accept a
// caller-supplied workspace root (one per build id, spec §4.2) instead of
// an ad hoc mktemp -d, and to take a pre-authenticated clone URL rather than
// shelling out unauthenticated.
package sourcefetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Workspace is a build's isolated source checkout on disk.
type Workspace struct {
	Dir string
}

// Clone removes any pre-existing directory at workspaceDir, then clones
// cloneURL (expected to already embed any access-token credentials, see
// internal/githubapp.AuthenticatedCloneURL) at ref into it. It first
// attempts a shallow, branch-qualified clone and falls back to a full
// clone + checkout for refs that are not branch heads (e.g. a commit SHA),
// mirroring the teacher's cloneRepo fallback.
func Clone(ctx context.Context, workspaceDir, cloneURL, ref string) (*Workspace, error) {
	if err := os.RemoveAll(workspaceDir); err != nil {
		return nil, fmt.Errorf("clear workspace directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(workspaceDir), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace parent: %w", err)
	}

	shallow := exec.CommandContext(ctx, "git", "clone", "--depth=1", "-b", ref, cloneURL, workspaceDir)
	if err := shallow.Run(); err != nil {
		full := exec.CommandContext(ctx, "git", "clone", cloneURL, workspaceDir)
		if err := full.Run(); err != nil {
			return nil, fmt.Errorf("clone repository: %w", err)
		}

		checkout := exec.CommandContext(ctx, "git", "-C", workspaceDir, "checkout", ref)
		if err := checkout.Run(); err != nil {
			return nil, fmt.Errorf("checkout ref %s: %w", ref, err)
		}
	}

	return &Workspace{Dir: workspaceDir}, nil
}

// RootDirectory joins the workspace root with a project's configured
// subdirectory (spec §3, "root_directory"), used to locate package.json
// when the application doesn't live at the repo root.
func (w *Workspace) RootDirectory(relative string) string {
	if relative == "" || relative == "." {
		return w.Dir
	}
	return filepath.Join(w.Dir, relative)
}

// Cleanup removes the workspace directory entirely once a build finishes,
// successfully or not.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}
