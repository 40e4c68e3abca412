package workerapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/internal/queue"
)

// Handlers exposes the Build Worker's own small HTTP surface: a health
// check and a fallback trigger for when queue delivery is bypassed (spec
// §6, "Build Worker. POST /build {BuildJobData} (fallback); GET /health").
type Handlers struct {
	worker *Worker
	log    zerolog.Logger
}

// NewHandlers builds Handlers backed by worker.
func NewHandlers(worker *Worker, log zerolog.Logger) *Handlers {
	return &Handlers{worker: worker, log: log}
}

// MountRoutes registers the Build Worker's routes on r.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Post("/build", h.Build)
}

// Health reports process liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Build accepts a BuildJobData directly, bypassing the queue, and runs it
// in the background: the fallback path "fires-and-forgets" (spec §4.2).
func (h *Handlers) Build(w http.ResponseWriter, r *http.Request) {
	var job queue.BuildJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "invalid build job payload", http.StatusBadRequest)
		return
	}
	if job.BuildID == uuid.Nil {
		http.Error(w, "build_id is required", http.StatusBadRequest)
		return
	}

	// The triggering request returns immediately; RunJob must outlive it,
	// so it gets its own background context rather than r.Context().
	go h.worker.RunJob(context.Background(), &job)

	writeJSON(w, http.StatusAccepted, map[string]string{"build_id": job.BuildID.String()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
