package deployer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestActivateSendsExpectedPayload(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL)
	err := client.Activate(context.Background(), ActivateRequest{
		ProjectID: "p1", BuildID: "b1", Port: 4000, Framework: "vite",
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if gotPath != "/activate" {
		t.Fatalf("expected POST /activate, got %s", gotPath)
	}
	if !strings.Contains(gotBody, `"project_id":"p1"`) {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestActivateReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := New(srv.URL)
	err := client.Activate(context.Background(), ActivateRequest{ProjectID: "p1"})
	if err == nil {
		t.Fatalf("expected an error for a non-200 response")
	}
}

func TestCheckPortFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("port") != "4000" {
			t.Errorf("unexpected port query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"free":true}`))
	}))
	defer srv.Close()

	client := New(srv.URL)
	free, err := client.CheckPortFree(context.Background(), 4000)
	if err != nil {
		t.Fatalf("CheckPortFree: %v", err)
	}
	if !free {
		t.Fatalf("expected port to be reported free")
	}
}
