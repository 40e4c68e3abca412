// Package deployer is the Control Plane's client for the Deploy Engine's
// HTTP surface (spec §4.3, "Deploy Engine API"): artifact upload and
// activation/stop/delete, generalized from the teacher's docker.Runner
// command-execution pattern into REST calls against a remote agent.
package deployer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to one Deploy Engine instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client targeting baseURL (e.g. http://localhost:8082).
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ActivateRequest mirrors agentapi's activation payload.
type ActivateRequest struct {
	ProjectID string            `json:"project_id"`
	BuildID   string            `json:"build_id"`
	Port      int               `json:"port"`
	Framework string            `json:"framework"`
	Subdomain string            `json:"subdomain"`
	EnvVars   map[string]string `json:"env_vars"`
}

// UploadArtifact streams a build's artifact tarball to the Deploy Engine.
func (c *Client) UploadArtifact(ctx context.Context, buildID string, body io.Reader) error {
	url := fmt.Sprintf("%s/artifacts/%s", c.baseURL, buildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload artifact: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Activate asks the Deploy Engine to activate a build.
func (c *Client) Activate(ctx context.Context, req ActivateRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal activate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/activate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build activate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("activate: unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Stop asks the Deploy Engine to stop a project's running process.
func (c *Client) Stop(ctx context.Context, projectID string, port int) error {
	target := fmt.Sprintf("%s/stop/%s?port=%d", c.baseURL, url.PathEscape(projectID), port)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("build stop request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stop: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DeleteProject asks the Deploy Engine to stop and remove a project's files
// and artifacts, including its reverse proxy vhost when subdomain is set.
func (c *Client) DeleteProject(ctx context.Context, projectID string, port int, buildIDs []string, subdomain string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"build_ids": buildIDs,
		"subdomain": subdomain,
	})
	if err != nil {
		return fmt.Errorf("marshal delete request: %w", err)
	}

	target := fmt.Sprintf("%s/projects/%s?port=%d", c.baseURL, url.PathEscape(projectID), port)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete project: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// CheckPortFree asks the Deploy Engine whether port is currently free.
func (c *Client) CheckPortFree(ctx context.Context, port int) (bool, error) {
	target := fmt.Sprintf("%s/ports/check?port=%s", c.baseURL, strconv.Itoa(port))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("build port check request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("check port: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Free bool `json:"free"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode port check response: %w", err)
	}
	return result.Free, nil
}
