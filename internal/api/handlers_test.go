package api

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/pubsub"
	"github.com/shiplinehq/shipline/internal/store"
)

const testAdminToken = "test-admin-token"

func newTestHandlers(t *testing.T) (*Handlers, *fakeProjectStore, *fakeBuildStore, *fakeDeploymentStore, *fakeEnvVarStore, *fakeJobQueue, *fakeDeployEngineClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		t.Fatalf("generate master key: %v", err)
	}

	projects := newFakeProjectStore()
	builds := newFakeBuildStore()
	deployments := newFakeDeploymentStore()
	envVars := newFakeEnvVarStore()
	installations := &fakeInstallationStore{}
	github := &fakeGithubAuthenticator{}
	jobQueue := &fakeJobQueue{}
	deployClient := newFakeDeployEngineClient()

	h := NewHandlers(projects, builds, deployments, envVars, installations, github, jobQueue, deployClient, pubsub.NewHub(), audit.New(nil), nil, masterKey, "shipline.dev", "test", zerolog.Nop())
	return h, projects, builds, deployments, envVars, jobQueue, deployClient
}

func newTestEngine(h *Handlers) *gin.Engine {
	r := gin.New()
	SetupRoutes(r, h, testAdminToken, nil, nil)
	return r
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	h, _, _, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDashboardRoutesRequireAdminToken(t *testing.T) {
	h, _, _, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCreateProjectValidatesBuildCommand(t *testing.T) {
	h, _, _, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	body := []byte(`{"name":"app","github_url":"https://github.com/o/r","build_command":"rm -rf /","app_type":"vite"}`)
	req := authedRequest(http.MethodPost, "/projects", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for disallowed build command, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateProjectSucceedsAndAllocatesPort(t *testing.T) {
	h, projects, _, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	body := []byte(`{"name":"app","github_url":"https://github.com/o/r","build_command":"bun run build","app_type":"vite"}`)
	req := authedRequest(http.MethodPost, "/projects", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Port < minAllocatablePort {
		t.Fatalf("expected allocated port >= %d, got %d", minAllocatablePort, created.Port)
	}
	if _, err := projects.GetProject(req.Context(), created.ID); err != nil {
		t.Fatalf("expected project to be persisted: %v", err)
	}
}

func TestCreateBuildEnqueuesJob(t *testing.T) {
	h, projects, builds, _, _, queue, _ := newTestHandlers(t)
	r := newTestEngine(h)

	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001, AutoDeploy: true}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	req := authedRequest(http.MethodPost, "/projects/"+project.ID.String()+"/builds", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(queue.enqueued) != 1 {
		t.Fatalf("expected exactly one enqueued job, got %d", len(queue.enqueued))
	}
	job := queue.enqueued[0]
	if job.ProjectID != project.ID {
		t.Fatalf("job project id mismatch: got %s, want %s", job.ProjectID, project.ID)
	}

	stored, err := builds.GetBuild(nil, job.BuildID)
	if err != nil {
		t.Fatalf("expected build to be persisted: %v", err)
	}
	if stored.Status != store.BuildStatusPending {
		t.Fatalf("expected pending status, got %s", stored.Status)
	}
}

func TestCreateBuildFailsWhenQueueRejects(t *testing.T) {
	h, projects, builds, _, _, queue, _ := newTestHandlers(t)
	r := newTestEngine(h)
	queue.failNext = true

	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001, AutoDeploy: true}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	req := authedRequest(http.MethodPost, "/projects/"+project.ID.String()+"/builds", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 (build record still created), got %d", rec.Code)
	}

	var created store.Build
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	stored, err := builds.GetBuild(nil, created.ID)
	if err != nil {
		t.Fatalf("expected build to be persisted: %v", err)
	}
	if stored.Status != store.BuildStatusFailed {
		t.Fatalf("expected build marked failed after queue rejection, got %s", stored.Status)
	}
}

func TestActivateBuildRequiresSuccessStatus(t *testing.T) {
	h, projects, builds, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	build := &store.Build{ProjectID: project.ID}
	if err := builds.CreateBuild(nil, build); err != nil {
		t.Fatalf("seed build: %v", err)
	}

	req := authedRequest(http.MethodPost, "/deploy/build/"+build.ID.String()+"/activate", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-success build, got %d", rec.Code)
	}
}

func TestActivateBuildActivatesSuccessfulBuild(t *testing.T) {
	h, projects, builds, deployments, _, _, deployer := newTestHandlers(t)
	r := newTestEngine(h)

	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	build := &store.Build{ProjectID: project.ID}
	if err := builds.CreateBuild(nil, build); err != nil {
		t.Fatalf("seed build: %v", err)
	}
	if err := builds.TransitionBuildStatus(nil, build.ID, store.BuildStatusSuccess); err != nil {
		t.Fatalf("transition build: %v", err)
	}

	req := authedRequest(http.MethodPost, "/deploy/build/"+build.ID.String()+"/activate", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(deployer.activated) != 1 {
		t.Fatalf("expected one activation call, got %d", len(deployer.activated))
	}
	if _, err := deployments.GetActiveDeployment(nil, project.ID); err != nil {
		t.Fatalf("expected active deployment recorded: %v", err)
	}
}

func TestCheckDomainAvailability(t *testing.T) {
	h, projects, _, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	taken := "taken"
	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001, Domain: &taken}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	req := authedRequest(http.MethodGet, "/domains/check?subdomain=taken", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var resp struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Available {
		t.Fatalf("expected taken subdomain to be unavailable")
	}

	req = authedRequest(http.MethodGet, "/domains/check?subdomain=free", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Available {
		t.Fatalf("expected free subdomain to be available")
	}
}

func TestPutBuildStatusRejectsUnknownStatus(t *testing.T) {
	h, projects, builds, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	build := &store.Build{ProjectID: project.ID}
	if err := builds.CreateBuild(nil, build); err != nil {
		t.Fatalf("seed build: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/builds/"+build.ID.String(), bytes.NewReader([]byte(`{"status":"bogus"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestPostBuildLogPersistsAndPublishes(t *testing.T) {
	h, projects, builds, _, _, _, _ := newTestHandlers(t)
	r := newTestEngine(h)

	project := &store.Project{Name: "app", RepoURL: "https://github.com/o/r", DefaultBranch: "main", BuildCommand: "bun run build", Framework: store.FrameworkVite, Port: 8001}
	if err := projects.CreateProject(nil, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	build := &store.Build{ProjectID: project.ID}
	if err := builds.CreateBuild(nil, build); err != nil {
		t.Fatalf("seed build: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/builds/"+build.ID.String()+"/logs", bytes.NewReader([]byte(`{"logs":"installing deps","level":"info"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	entries, err := builds.ListLogEntries(nil, build.ID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one persisted log entry, got %d, err=%v", len(entries), err)
	}
	if entries[0].Message != "installing deps" {
		t.Fatalf("unexpected log message: %q", entries[0].Message)
	}
}

func TestDeleteBuildQueueDrainsPending(t *testing.T) {
	h, _, _, _, _, queue, _ := newTestHandlers(t)
	r := newTestEngine(h)
	queue.enqueued = append(queue.enqueued, nil, nil)

	req := authedRequest(http.MethodDelete, "/builds/queue", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Drained int `json:"drained"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Drained != 2 {
		t.Fatalf("expected 2 drained jobs, got %d", resp.Drained)
	}
}
