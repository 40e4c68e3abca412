package githubapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const apiBaseURL = "https://api.github.com"

// InstallationToken is a short-lived token scoped to one App installation.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateInstallationToken exchanges the App JWT for an installation access
// token, used to authenticate git clones and API calls on behalf of the
// installing account (spec §4.4, "Source access").
func (a *Authenticator) CreateInstallationToken(ctx context.Context, installationID string) (*InstallationToken, error) {
	jwtToken, err := a.CreateJWT()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", apiBaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "shipline-control-plane/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status creating installation token: %d", resp.StatusCode)
	}

	var tok InstallationToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode installation token: %w", err)
	}
	return &tok, nil
}

// Repository is the subset of a GitHub repository the dashboard's repo
// picker needs.
type Repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

type repositoriesResponse struct {
	Repositories []Repository `json:"repositories"`
}

// ListRepositories returns the repositories an installation has access to,
// used by the dashboard's "GET /github/installations/:id/repositories"
// (spec §6).
func (a *Authenticator) ListRepositories(ctx context.Context, installationID string) ([]Repository, error) {
	tok, err := a.CreateInstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+"/installation/repositories", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "shipline-control-plane/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list installation repositories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status listing repositories: %d", resp.StatusCode)
	}

	var out repositoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode repositories response: %w", err)
	}
	return out.Repositories, nil
}

// AuthenticatedCloneURL rewrites an https:// GitHub repo URL to embed an
// installation token as basic-auth credentials, so a plain `git clone`
// against it succeeds without an interactive credential prompt.
func AuthenticatedCloneURL(repoURL, token string) (string, error) {
	if !strings.HasPrefix(repoURL, "https://") {
		return "", fmt.Errorf("only https clone urls are supported, got %q", repoURL)
	}
	rest := strings.TrimPrefix(repoURL, "https://")
	return fmt.Sprintf("https://x-access-token:%s@%s", token, rest), nil
}
