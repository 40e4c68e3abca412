// Package deployagent implements the Deploy Engine's process-mode
// activation state machine (spec §4.3, "Process mode"): atomic symlink
// rotation, prior-process teardown, framework-aware process launch, and
// health-check polling. Grounded on the teacher repo's process-oriented
// helpers in internal/docker/runner.go (command construction, output
// streaming) and internal/health/prober.go (HTTP health polling),
// generalized from Docker-container targets to bare OS processes.
package deployagent

import (
	"fmt"
	"path/filepath"
)

// ProjectPaths resolves the on-disk layout for one project under appsDir:
//
//	apps/<project_id>/builds/<build_id>/
//	apps/<project_id>/current -> builds/<build_id>/
//	apps/<project_id>/server.pid
//	apps/<project_id>/current_build_id
type ProjectPaths struct {
	root string
}

// NewProjectPaths resolves paths for projectID under appsDir.
func NewProjectPaths(appsDir, projectID string) *ProjectPaths {
	return &ProjectPaths{root: filepath.Join(appsDir, projectID)}
}

func (p *ProjectPaths) Root() string { return p.root }

func (p *ProjectPaths) BuildDir(buildID string) string {
	return filepath.Join(p.root, "builds", buildID)
}

func (p *ProjectPaths) Current() string {
	return filepath.Join(p.root, "current")
}

func (p *ProjectPaths) ServerPIDFile() string {
	return filepath.Join(p.root, "server.pid")
}

func (p *ProjectPaths) CurrentBuildIDFile() string {
	return filepath.Join(p.root, "current_build_id")
}

func (p *ProjectPaths) tempSymlinkName(nanos int64) string {
	return filepath.Join(p.root, fmt.Sprintf(".current_tmp_%d", nanos))
}

// ArtifactPath resolves an artifact tarball's path under artifactsDir.
func ArtifactPath(artifactsDir, buildID string) string {
	return filepath.Join(artifactsDir, buildID+".tar.gz")
}
