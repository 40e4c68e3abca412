// Package agentapi exposes the Deploy Engine's HTTP surface (spec §4.3,
// "Deploy Engine API"): port allocation checks, artifact upload, process
// activation/stop/delete, and liveness. Routed with go-chi/chi/v5, mirrored
// after the pack's chi route-group style (see MountRoutes).
package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/internal/deployagent"
)

// Activator is the subset of deployagent.Agent this package depends on.
type Activator interface {
	Activate(ctx context.Context, req deployagent.ActivationRequest) error
	Stop(ctx context.Context, projectID string, port int) error
	Delete(ctx context.Context, projectID string, port int, buildIDs []string, subdomain string) error
}

// Handlers implements the Deploy Engine's HTTP endpoints.
type Handlers struct {
	agent        Activator
	artifactsDir string
	log          zerolog.Logger
}

// New builds Handlers backed by agent, storing uploaded artifacts under
// artifactsDir.
func New(agent Activator, artifactsDir string, log zerolog.Logger) *Handlers {
	return &Handlers{agent: agent, artifactsDir: artifactsDir, log: log}
}

// MountRoutes registers the Deploy Engine's routes on r.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/ports/check", h.CheckPort)
	r.Post("/artifacts/{buildId}", h.UploadArtifact)
	r.Post("/activate", h.Activate)
	r.Post("/stop/{projectId}", h.Stop)
	r.Delete("/projects/{projectId}", h.DeleteProject)
}

// Health reports process liveness unconditionally.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness to accept activations. Process mode has no
// external dependency to probe, so readiness mirrors liveness.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// CheckPort reports whether a TCP port is currently free, used by the
// Control Plane before assigning a new project a port (spec §3, "Port
// allocation").
func (h *Handlers) CheckPort(w http.ResponseWriter, r *http.Request) {
	portParam := r.URL.Query().Get("port")
	var port int
	if _, err := fmt.Sscanf(portParam, "%d", &port); err != nil || port <= 0 {
		http.Error(w, "invalid or missing port query parameter", http.StatusBadRequest)
		return
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	free := err == nil
	if free {
		ln.Close()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"free": free})
}

// UploadArtifact stores a build's gzipped tar artifact, streamed from
// Build Worker (spec §4.3, "Artifact upload").
func (h *Handlers) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildId")
	if buildID == "" {
		http.Error(w, "missing buildId", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.artifactsDir, 0o755); err != nil {
		http.Error(w, "failed to prepare artifacts directory", http.StatusInternalServerError)
		return
	}

	dest := deployagent.ArtifactPath(h.artifactsDir, buildID)
	out, err := os.Create(dest)
	if err != nil {
		http.Error(w, "failed to create artifact file", http.StatusInternalServerError)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, r.Body); err != nil {
		http.Error(w, "failed to write artifact", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"build_id": buildID})
}

type activateRequest struct {
	ProjectID string            `json:"project_id"`
	BuildID   string            `json:"build_id"`
	Port      int               `json:"port"`
	Framework string            `json:"framework"`
	Subdomain string            `json:"subdomain"`
	EnvVars   map[string]string `json:"env_vars"`
}

// Activate runs the process-mode activation sequence for a build.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.agent.Activate(r.Context(), deployagent.ActivationRequest{
		ProjectID: req.ProjectID,
		BuildID:   req.BuildID,
		Port:      req.Port,
		Framework: req.Framework,
		Subdomain: req.Subdomain,
		EnvVars:   req.EnvVars,
	})
	if err != nil {
		h.log.Error().Err(err).Str("project_id", req.ProjectID).Str("build_id", req.BuildID).Msg("activation failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// Stop tears down a project's running process without removing its files.
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	portParam := r.URL.Query().Get("port")
	var port int
	fmt.Sscanf(portParam, "%d", &port)

	if err := h.agent.Stop(r.Context(), projectID, port); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// DeleteProject stops and fully removes a project's on-disk state.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	portParam := r.URL.Query().Get("port")
	var port int
	fmt.Sscanf(portParam, "%d", &port)

	var body struct {
		BuildIDs  []string `json:"build_ids"`
		Subdomain string   `json:"subdomain"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.agent.Delete(r.Context(), projectID, port, body.BuildIDs, body.Subdomain); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
