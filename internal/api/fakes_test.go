package api

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shiplinehq/shipline/internal/deployer"
	"github.com/shiplinehq/shipline/internal/githubapp"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/store"
)

// fakeProjectStore, fakeBuildStore, etc. are minimal in-memory stand-ins
// for *store.Store, modeled on the fakeActivator pattern in
// internal/agentapi/handlers_test.go.

type fakeProjectStore struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*store.Project
	ports    map[int]bool
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: make(map[uuid.UUID]*store.Project), ports: make(map[int]bool)}
}

func (f *fakeProjectStore) CreateProject(ctx context.Context, p *store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New()
	f.projects[p.ID] = p
	f.ports[p.Port] = true
	return nil
}

func (f *fakeProjectStore) GetProject(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjectStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProjectStore) UpdateProject(ctx context.Context, p *store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeProjectStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeProjectStore) NextAvailablePort(ctx context.Context, minPort, maxPort int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := minPort
	for p := range f.ports {
		if p >= minPort && p+1 > next {
			next = p + 1
		}
	}
	if next > maxPort {
		return 0, errors.New("no ports available")
	}
	return next, nil
}

type fakeBuildStore struct {
	mu     sync.Mutex
	builds map[uuid.UUID]*store.Build
	logs   map[uuid.UUID][]store.LogEntry
}

func newFakeBuildStore() *fakeBuildStore {
	return &fakeBuildStore{builds: make(map[uuid.UUID]*store.Build), logs: make(map[uuid.UUID][]store.LogEntry)}
}

func (f *fakeBuildStore) CreateBuild(ctx context.Context, b *store.Build) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = uuid.New()
	b.Status = store.BuildStatusPending
	cp := *b
	f.builds[b.ID] = &cp
	return nil
}

func (f *fakeBuildStore) GetBuild(ctx context.Context, id uuid.UUID) (*store.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBuildStore) ListBuildsForProject(ctx context.Context, projectID uuid.UUID, limit int) ([]store.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Build
	for _, b := range f.builds {
		if b.ProjectID == projectID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBuildStore) ListBuildIDsForProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, b := range f.builds {
		if b.ProjectID == projectID {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

func (f *fakeBuildStore) TransitionBuildStatus(ctx context.Context, id uuid.UUID, next store.BuildStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return store.ErrNotFound
	}
	if b.Status.IsTerminal() {
		return store.ErrTerminalBuild
	}
	b.Status = next
	return nil
}

func (f *fakeBuildStore) AppendLogEntries(ctx context.Context, entries []store.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.logs[e.BuildID] = append(f.logs[e.BuildID], e)
	}
	return nil
}

func (f *fakeBuildStore) ListLogEntries(ctx context.Context, buildID uuid.UUID) ([]store.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[buildID], nil
}

func (f *fakeBuildStore) DeleteLogEntries(ctx context.Context, buildID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.logs, buildID)
	return nil
}

type fakeDeploymentStore struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]*store.Deployment
}

func newFakeDeploymentStore() *fakeDeploymentStore {
	return &fakeDeploymentStore{deployments: make(map[uuid.UUID]*store.Deployment)}
}

func (f *fakeDeploymentStore) ActivateDeployment(ctx context.Context, projectID, buildID uuid.UUID) (*store.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &store.Deployment{ID: uuid.New(), ProjectID: projectID, BuildID: buildID, Status: store.DeploymentStatusActive}
	f.deployments[projectID] = d
	return d, nil
}

func (f *fakeDeploymentStore) GetActiveDeployment(ctx context.Context, projectID uuid.UUID) (*store.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[projectID]
	if !ok || d.Status != store.DeploymentStatusActive {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeploymentStore) DeactivateDeployment(ctx context.Context, projectID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[projectID]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = store.DeploymentStatusInactive
	return nil
}

type fakeEnvVarStore struct {
	mu   sync.Mutex
	vars map[uuid.UUID]map[string]string
}

func newFakeEnvVarStore() *fakeEnvVarStore {
	return &fakeEnvVarStore{vars: make(map[uuid.UUID]map[string]string)}
}

func (f *fakeEnvVarStore) UpsertEnvironmentVariable(ctx context.Context, projectID uuid.UUID, key, ciphertext string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vars[projectID] == nil {
		f.vars[projectID] = make(map[string]string)
	}
	f.vars[projectID][key] = ciphertext
	return nil
}

func (f *fakeEnvVarStore) ListEnvironmentVariables(ctx context.Context, projectID uuid.UUID) ([]store.EnvironmentVariable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.EnvironmentVariable
	for k, v := range f.vars[projectID] {
		out = append(out, store.EnvironmentVariable{ProjectID: projectID, Key: k, ValueCiphertext: v})
	}
	return out, nil
}

func (f *fakeEnvVarStore) DeleteEnvironmentVariable(ctx context.Context, projectID uuid.UUID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vars[projectID][key]; !ok {
		return store.ErrNotFound
	}
	delete(f.vars[projectID], key)
	return nil
}

type fakeInstallationStore struct {
	installations []store.SourceInstallation
}

func (f *fakeInstallationStore) ListInstallations(ctx context.Context) ([]store.SourceInstallation, error) {
	return f.installations, nil
}

type fakeGithubAuthenticator struct {
	repos map[string][]githubapp.Repository
}

func (f *fakeGithubAuthenticator) ListRepositories(ctx context.Context, installationID string) ([]githubapp.Repository, error) {
	return f.repos[installationID], nil
}

type fakeJobQueue struct {
	mu       sync.Mutex
	enqueued []*queue.BuildJob
	failNext bool
}

func (f *fakeJobQueue) Enqueue(ctx context.Context, job *queue.BuildJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("queue unavailable")
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeJobQueue) PendingDepth(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.enqueued)), nil
}

func (f *fakeJobQueue) Drain(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.enqueued)
	f.enqueued = nil
	return n, nil
}

type fakeDeployEngineClient struct {
	mu           sync.Mutex
	activated    []deployer.ActivateRequest
	stopped      []string
	deleted      []string
	portsFree    map[int]bool
	failActivate bool
}

func newFakeDeployEngineClient() *fakeDeployEngineClient {
	return &fakeDeployEngineClient{portsFree: make(map[int]bool)}
}

func (f *fakeDeployEngineClient) CheckPortFree(ctx context.Context, port int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if free, ok := f.portsFree[port]; ok {
		return free, nil
	}
	return true, nil
}

func (f *fakeDeployEngineClient) Activate(ctx context.Context, req deployer.ActivateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActivate {
		return errors.New("activation failed")
	}
	f.activated = append(f.activated, req)
	return nil
}

func (f *fakeDeployEngineClient) Stop(ctx context.Context, projectID string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, projectID)
	return nil
}

func (f *fakeDeployEngineClient) DeleteProject(ctx context.Context, projectID string, port int, buildIDs []string, subdomain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, projectID)
	return nil
}
