package deployagent

import (
	"os"
	"path/filepath"
	"time"
)

// PruneStaleBuilds walks every project under appsDir and removes build
// directories older than maxAge, except the one "current" points at —
// disk cleanup for the steady stream of extracted builds Activate leaves
// behind (spec §4.3's atomic symlink rotation never deletes a prior
// build's directory itself).
func (a *Agent) PruneStaleBuilds(maxAge time.Duration) error {
	entries, err := os.ReadDir(a.appsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID := entry.Name()
		paths := NewProjectPaths(a.appsDir, projectID)

		keep, _ := currentTargetDir(paths)

		buildsDir := filepath.Join(paths.Root(), "builds")
		builds, err := os.ReadDir(buildsDir)
		if err != nil {
			continue
		}

		for _, build := range builds {
			if !build.IsDir() {
				continue
			}
			buildPath := paths.BuildDir(build.Name())
			if buildPath == keep {
				continue
			}

			info, err := build.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			if err := os.RemoveAll(buildPath); err != nil {
				a.log.Warn().Err(err).Str("path", buildPath).Msg("failed to prune stale build directory")
			}
		}
	}

	return nil
}
