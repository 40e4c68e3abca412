package dockerengine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	containerPrefix = "thakur-"
	imageRepoPrefix = "thakur-deploy/"
	projectLabel    = "thakur.projectId"
	buildLabel      = "thakur.buildId"

	containerMemoryBytes = 512 * 1024 * 1024
	containerCPUQuota    = 0.5
	imagesToKeep         = 3
)

// Engine drives container-mode activations using the Docker SDK.
type Engine struct {
	client *client.Client
}

// New builds an Engine from the ambient Docker environment (DOCKER_HOST,
// etc.), matching the teacher's client.FromEnv pattern.
func New() (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Engine{client: cli}, nil
}

// ContainerName returns the deterministic container name for a project
// (spec §4.3, "container name thakur-<project_id[:8]>").
func ContainerName(projectID string) string {
	return containerPrefix + shortID(projectID)
}

// ImageTag returns the deterministic image tag for a project/build pair.
func ImageTag(projectID, buildID string) string {
	return fmt.Sprintf("%s%s:%s", imageRepoPrefix, shortID(projectID), shortID(buildID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunSpec describes a container launch (spec §4.3, "Container mode").
type RunSpec struct {
	ProjectID    string
	BuildID      string
	ImageTag     string
	HostPort     int
	InternalPort int
	EnvVars      map[string]string
}

// EnsureStopped stops and removes any existing container for projectID,
// ignoring a not-found error.
func (e *Engine) EnsureStopped(ctx context.Context, projectID string) error {
	name := ContainerName(projectID)
	timeout := 10
	if err := e.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	if err := e.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

// BuildImage builds an image from a tarred build context, tagged imageTag.
func (e *Engine) BuildImage(ctx context.Context, buildContext io.Reader, imageTag string) error {
	resp, err := e.client.ImageBuild(ctx, buildContext, dockerBuildOptions(imageTag))
	if err != nil {
		return fmt.Errorf("build image %s: %w", imageTag, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read build output for %s: %w", imageTag, err)
	}
	return nil
}

// Run launches a detached container per spec §4.3's resource and labeling
// requirements: restart unless-stopped, 512m memory, 0.5 cpus, port
// mapping, and thakur.projectId/thakur.buildId labels for recovery.
func (e *Engine) Run(ctx context.Context, spec RunSpec) (string, error) {
	name := ContainerName(spec.ProjectID)

	env := make([]string, 0, len(spec.EnvVars)+2)
	for k, v := range spec.EnvVars {
		env = append(env, k+"="+v)
	}
	env = append(env, fmt.Sprintf("PORT=%d", spec.InternalPort), "NODE_ENV=production")

	internalPort := nat.Port(strconv.Itoa(spec.InternalPort) + "/tcp")
	exposedPorts := nat.PortSet{internalPort: struct{}{}}
	portBindings := nat.PortMap{
		internalPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.HostPort)}},
	}

	cfg := &container.Config{
		Image:        spec.ImageTag,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels: map[string]string{
			projectLabel: spec.ProjectID,
			buildLabel:   spec.BuildID,
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings:  portBindings,
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
		Resources: container.Resources{
			Memory:   containerMemoryBytes,
			NanoCPUs: int64(containerCPUQuota * 1e9),
		},
	}

	resp, err := e.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", name, err)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", name, err)
	}

	return resp.ID, nil
}

// Logs returns a combined stdout/stderr stream for a running container, for
// the background log follower.
func (e *Engine) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
}

// RunningProjectContainers lists containers carrying the thakur.projectId
// label, used for recovery on startup (spec §4.3, "Recovery on startup
// (container mode)").
func (e *Engine) RunningProjectContainers(ctx context.Context) ([]RecoveredContainer, error) {
	args := filters.NewArgs(filters.Arg("label", projectLabel))
	containers, err := e.client.ContainerList(ctx, container.ListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list project containers: %w", err)
	}

	recovered := make([]RecoveredContainer, 0, len(containers))
	for _, c := range containers {
		recovered = append(recovered, RecoveredContainer{
			ContainerID: c.ID,
			ProjectID:   c.Labels[projectLabel],
			BuildID:     c.Labels[buildLabel],
		})
	}
	return recovered, nil
}

// RecoveredContainer identifies a project's running container discovered
// at startup.
type RecoveredContainer struct {
	ContainerID string
	ProjectID   string
	BuildID     string
}

// PruneImages removes a project's older images, keeping the `imagesToKeep`
// most recently created (spec §4.3, "prune images for the project, keeping
// the 3 newest by creation time").
func (e *Engine) PruneImages(ctx context.Context, projectID string) error {
	repo := imageRepoPrefix + shortID(projectID)
	images, err := e.client.ImageList(ctx, dockerimage.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", repo+":*")),
	})
	if err != nil {
		return fmt.Errorf("list images for %s: %w", repo, err)
	}

	sort.Slice(images, func(i, j int) bool { return images[i].Created > images[j].Created })

	for i, img := range images {
		if i < imagesToKeep {
			continue
		}
		if _, err := e.client.ImageRemove(ctx, img.ID, dockerimage.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("remove image %s: %w", img.ID, err)
		}
	}
	return nil
}

// RemoveAllImages removes every image built for the project, used on
// project delete rather than the routine keep-3 prune (spec §4.3, "Delete.
// ... (container mode) remove all images for this project").
func (e *Engine) RemoveAllImages(ctx context.Context, projectID string) error {
	repo := imageRepoPrefix + shortID(projectID)
	images, err := e.client.ImageList(ctx, dockerimage.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", repo+":*")),
	})
	if err != nil {
		return fmt.Errorf("list images for %s: %w", repo, err)
	}

	for _, img := range images {
		if _, err := e.client.ImageRemove(ctx, img.ID, dockerimage.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("remove image %s: %w", img.ID, err)
		}
	}
	return nil
}

// SweepOrphanedImages removes every image whose project has no container
// currently running, regardless of age (spec §4.3's periodic maintenance,
// run by an hourly cron job) — distinct from PruneImages, which only trims a
// single still-active project down to its 3 newest builds.
func (e *Engine) SweepOrphanedImages(ctx context.Context) error {
	running, err := e.RunningProjectContainers(ctx)
	if err != nil {
		return fmt.Errorf("list running containers: %w", err)
	}
	activeRepos := make(map[string]bool, len(running))
	for _, c := range running {
		activeRepos[imageRepoPrefix+shortID(c.ProjectID)] = true
	}

	images, err := e.client.ImageList(ctx, dockerimage.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imageRepoPrefix+"*")),
	})
	if err != nil {
		return fmt.Errorf("list project images: %w", err)
	}

	for _, img := range images {
		if imageIsActive(img.RepoTags, activeRepos) {
			continue
		}
		if _, err := e.client.ImageRemove(ctx, img.ID, dockerimage.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("remove orphaned image %s: %w", img.ID, err)
		}
	}
	return nil
}

func imageIsActive(repoTags []string, activeRepos map[string]bool) bool {
	for _, tag := range repoTags {
		repo := tag
		if idx := strings.LastIndex(tag, ":"); idx != -1 {
			repo = tag[:idx]
		}
		if activeRepos[repo] {
			return true
		}
	}
	return false
}

func dockerBuildOptions(imageTag string) types.ImageBuildOptions {
	return types.ImageBuildOptions{
		Tags:       []string{imageTag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	}
}

// BuildImageFromDir tars buildDir (which must already contain a
// Dockerfile, written or sanitized by the caller) and builds it as
// imageTag.
func (e *Engine) BuildImageFromDir(ctx context.Context, buildDir, imageTag string) error {
	ctxTar, err := tarDirectory(buildDir)
	if err != nil {
		return fmt.Errorf("tar build context: %w", err)
	}
	return e.BuildImage(ctx, ctxTar, imageTag)
}

// tarDirectory packages dir into an in-memory tar stream suitable as a
// Docker build context.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
