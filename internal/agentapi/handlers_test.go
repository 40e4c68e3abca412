package agentapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/internal/deployagent"
)

type fakeActivator struct {
	activated []deployagent.ActivationRequest
	stopped   []string
	failNext  bool
}

func (f *fakeActivator) Activate(ctx context.Context, req deployagent.ActivationRequest) error {
	if f.failNext {
		return context.DeadlineExceeded
	}
	f.activated = append(f.activated, req)
	return nil
}

func (f *fakeActivator) Stop(ctx context.Context, projectID string, port int) error {
	f.stopped = append(f.stopped, projectID)
	return nil
}

func (f *fakeActivator) Delete(ctx context.Context, projectID string, port int, buildIDs []string, subdomain string) error {
	return nil
}

func newTestRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	MountRoutes(r, h)
	return r
}

func TestHealthAndReady(t *testing.T) {
	h := New(&fakeActivator{}, t.TempDir(), zerolog.Nop())
	r := newTestRouter(h)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestActivateSuccess(t *testing.T) {
	fake := &fakeActivator{}
	h := New(fake, t.TempDir(), zerolog.Nop())
	r := newTestRouter(h)

	body := `{"project_id":"p1","build_id":"b1","port":4000,"framework":"vite"}`
	req := httptest.NewRequest(http.MethodPost, "/activate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(fake.activated) != 1 || fake.activated[0].ProjectID != "p1" {
		t.Fatalf("expected activation recorded for p1, got %+v", fake.activated)
	}
}

func TestActivateFailurePropagates(t *testing.T) {
	fake := &fakeActivator{failNext: true}
	h := New(fake, t.TempDir(), zerolog.Nop())
	r := newTestRouter(h)

	body := `{"project_id":"p1","build_id":"b1","port":4000,"framework":"vite"}`
	req := httptest.NewRequest(http.MethodPost, "/activate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestUploadArtifactWritesFile(t *testing.T) {
	dir := t.TempDir()
	h := New(&fakeActivator{}, dir, zerolog.Nop())
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/artifacts/build-1", bytes.NewReader([]byte("fake tarball")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	path := filepath.Join(dir, "build-1.tar.gz")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading uploaded artifact: %v", err)
	}
	if string(data) != "fake tarball" {
		t.Fatalf("unexpected artifact contents: %s", data)
	}
}

func TestCheckPortRejectsMissingParam(t *testing.T) {
	h := New(&fakeActivator{}, t.TempDir(), zerolog.Nop())
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/ports/check", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
