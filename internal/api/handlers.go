// Package api implements the Control Plane's two REST surfaces (spec
// §4.1): an admin-token-authenticated dashboard API and an unauthenticated,
// network-segmented internal API for the Build Worker and Deploy Engine.
// Modeled on the teacher repo's internal/api package (gin.Context
// handlers, one file per resource, a Handlers struct wired from
// interfaces so fakes can stand in for *store.Store in tests).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/githubapp"
	"github.com/shiplinehq/shipline/internal/metrics"
	"github.com/shiplinehq/shipline/internal/pubsub"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/store"
	"github.com/shiplinehq/shipline/internal/version"
)

// ProjectStore is the persistence surface the projects resource needs.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *store.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*store.Project, error)
	ListProjects(ctx context.Context) ([]store.Project, error)
	UpdateProject(ctx context.Context, p *store.Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error
	NextAvailablePort(ctx context.Context, minPort, maxPort int) (int, error)
}

// BuildStore is the persistence surface the builds resource needs.
type BuildStore interface {
	CreateBuild(ctx context.Context, b *store.Build) error
	GetBuild(ctx context.Context, id uuid.UUID) (*store.Build, error)
	ListBuildsForProject(ctx context.Context, projectID uuid.UUID, limit int) ([]store.Build, error)
	ListBuildIDsForProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	TransitionBuildStatus(ctx context.Context, id uuid.UUID, next store.BuildStatus) error
	AppendLogEntries(ctx context.Context, entries []store.LogEntry) error
	ListLogEntries(ctx context.Context, buildID uuid.UUID) ([]store.LogEntry, error)
	DeleteLogEntries(ctx context.Context, buildID uuid.UUID) error
}

// DeploymentStore is the persistence surface the deployments resource
// needs.
type DeploymentStore interface {
	ActivateDeployment(ctx context.Context, projectID, buildID uuid.UUID) (*store.Deployment, error)
	GetActiveDeployment(ctx context.Context, projectID uuid.UUID) (*store.Deployment, error)
	DeactivateDeployment(ctx context.Context, projectID uuid.UUID) error
}

// EnvVarStore is the persistence surface the environment-variables
// resource needs.
type EnvVarStore interface {
	UpsertEnvironmentVariable(ctx context.Context, projectID uuid.UUID, key, ciphertext string) error
	ListEnvironmentVariables(ctx context.Context, projectID uuid.UUID) ([]store.EnvironmentVariable, error)
	DeleteEnvironmentVariable(ctx context.Context, projectID uuid.UUID, key string) error
}

// InstallationStore is the persistence surface the GitHub installations
// resource needs.
type InstallationStore interface {
	ListInstallations(ctx context.Context) ([]store.SourceInstallation, error)
}

// GithubAuthenticator lists repositories reachable by an installation
// (spec §6, "GET /github/installations/:id/repositories").
type GithubAuthenticator interface {
	ListRepositories(ctx context.Context, installationID string) ([]githubapp.Repository, error)
}

// JobQueue is the durable build-job handoff the builds resource enqueues
// into (spec §4.1, "Queue submission").
type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.BuildJob) error
	PendingDepth(ctx context.Context) (int64, error)
	Drain(ctx context.Context) (int, error)
}

// DeployEngineClient is the Deploy Engine surface the deployments resource
// and project-port allocation drive (spec §4.3 contract).
type DeployEngineClient interface {
	CheckPortFree(ctx context.Context, port int) (bool, error)
	Activate(ctx context.Context, req deployer.ActivateRequest) error
	Stop(ctx context.Context, projectID string, port int) error
	DeleteProject(ctx context.Context, projectID string, port int, buildIDs []string, subdomain string) error
}

const (
	minAllocatablePort = 8001
	maxAllocatablePort = 20000
)

// Handlers holds every dependency the Control Plane's HTTP handlers need.
type Handlers struct {
	projects      ProjectStore
	builds        BuildStore
	deployments   DeploymentStore
	envVars       EnvVarStore
	installations InstallationStore
	github        GithubAuthenticator
	queue         JobQueue
	deployer      DeployEngineClient
	hub           *pubsub.Hub
	audit         *audit.Logger
	metrics       *metrics.Collector
	masterKey     []byte
	baseDomain    string
	environment   string
	log           zerolog.Logger
}

// NewHandlers builds a Handlers instance from its dependencies.
func NewHandlers(projects ProjectStore, builds BuildStore, deployments DeploymentStore, envVars EnvVarStore, installations InstallationStore, github GithubAuthenticator, queue JobQueue, deployer DeployEngineClient, hub *pubsub.Hub, auditLogger *audit.Logger, collector *metrics.Collector, masterKey []byte, baseDomain, environment string, log zerolog.Logger) *Handlers {
	return &Handlers{
		projects:      projects,
		builds:        builds,
		deployments:   deployments,
		envVars:       envVars,
		installations: installations,
		github:        github,
		queue:         queue,
		deployer:      deployer,
		hub:           hub,
		audit:         auditLogger,
		metrics:       collector,
		masterKey:     masterKey,
		baseDomain:    baseDomain,
		environment:   environment,
		log:           log,
	}
}

// Health reports process liveness for load balancers and uptime checks.
func (h *Handlers) Health(c *gin.Context) {
	info := version.Get()
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"uptime":  version.GetUptime().String(),
		"version": info.Version,
	})
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
