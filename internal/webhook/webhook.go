// Package webhook verifies and dispatches GitHub webhook deliveries for the
// Control Plane's ingress surface (spec §4.4). Ported from the teacher
// repo's internal/github/webhook.go: HMAC verification and the
// installation/push event split carry over, generalized from the
// teacher's GitHubStore interface to shipline's project/build model.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const maxCommitMessageLen = 255

// Store is the persistence surface the webhook handler needs: installation
// bookkeeping and build triggering. The Control Plane's *store.Store plus a
// BuildTrigger adapter satisfy it.
type Store interface {
	UpsertInstallation(ctx context.Context, installation *Installation) error
	// DeleteInstallationByExternalID removes the installation row and nulls
	// installation_id on every project that referenced it (spec §4.4 step 3,
	// "installation"/"deleted").
	DeleteInstallationByExternalID(ctx context.Context, externalID string) error
	ProjectsForRepoAndBranch(ctx context.Context, repoID, branch string) ([]Project, error)
	BuildExistsForCommit(ctx context.Context, projectID, commitSHA string) (bool, error)
	TriggerBuild(ctx context.Context, project *Project, push *PushInfo) error
}

// Installation is the subset of a GitHub App installation the webhook
// handler persists.
type Installation struct {
	ExternalID   string
	AccountLogin string
	AccountID    string
	AccountType  string
}

// Project is the subset of project fields the webhook handler needs to
// decide whether and how to trigger a build.
type Project struct {
	ID            string
	DefaultBranch string
	AutoDeploy    bool
}

// PushInfo is the normalized push-event data handed to Store.TriggerBuild.
type PushInfo struct {
	Branch           string
	CommitSHA        string
	CommitMessage    string
	InstallationID   string
}

// Handler verifies and routes GitHub webhook deliveries.
type Handler struct {
	secret string
	store  Store
	log    zerolog.Logger
}

// New builds a webhook Handler. secret is the GitHub App's configured
// webhook secret (spec §4.4, "Signature verification").
func New(secret string, store Store, log zerolog.Logger) *Handler {
	return &Handler{secret: secret, store: store, log: log}
}

// ServeHTTP implements http.Handler for the webhook ingress route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		http.Error(w, "missing event type", http.StatusBadRequest)
		return
	}

	summary, err := h.handleEvent(r.Context(), eventType, body)
	if err != nil {
		// per spec §4.4 step 4, the webhook never surfaces an error to
		// GitHub: a malformed or unsupported delivery is acknowledged so
		// GitHub doesn't retry it forever.
		h.log.Error().Err(err).Str("event", eventType).Msg("webhook event handling failed")
		summary = &deliverySummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(summary)
}

// deliverySummary is returned for every accepted delivery (spec §4.4 step
// 4, "{processed, builds_triggered, builds_skipped}").
type deliverySummary struct {
	Processed       int `json:"processed"`
	BuildsTriggered int `json:"builds_triggered"`
	BuildsSkipped   int `json:"builds_skipped"`
}

// verifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw body, using a constant-time comparison (spec §4.4
// invariant: "signature must be verified before any parsing").
func (h *Handler) verifySignature(signature string, body []byte) bool {
	if signature == "" || h.secret == "" {
		return false
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func (h *Handler) handleEvent(ctx context.Context, eventType string, body []byte) (*deliverySummary, error) {
	switch eventType {
	case "installation":
		return &deliverySummary{}, h.handleInstallationEvent(ctx, body)
	case "push":
		return h.handlePushEvent(ctx, body)
	default:
		h.log.Debug().Str("event", eventType).Msg("ignoring unhandled webhook event type")
		return &deliverySummary{}, nil
	}
}

type ghAccount struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Type  string `json:"type"`
}

type ghInstallation struct {
	ID      int64     `json:"id"`
	Account ghAccount `json:"account"`
}

type installationEvent struct {
	Action       string         `json:"action"`
	Installation ghInstallation `json:"installation"`
}

func (h *Handler) handleInstallationEvent(ctx context.Context, body []byte) error {
	var event installationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("parse installation event: %w", err)
	}

	externalID := fmt.Sprintf("%d", event.Installation.ID)

	switch event.Action {
	case "created", "new_permissions_accepted":
		inst := &Installation{
			ExternalID:   externalID,
			AccountLogin: event.Installation.Account.Login,
			AccountID:    fmt.Sprintf("%d", event.Installation.Account.ID),
			AccountType:  event.Installation.Account.Type,
		}
		if err := h.store.UpsertInstallation(ctx, inst); err != nil {
			return fmt.Errorf("upsert installation: %w", err)
		}
		h.log.Info().Str("account", inst.AccountLogin).Msg("github app installation recorded")

	case "deleted":
		if err := h.store.DeleteInstallationByExternalID(ctx, externalID); err != nil {
			return fmt.Errorf("delete installation: %w", err)
		}
		h.log.Info().Str("installation_id", externalID).Msg("github app installation removed")
	}

	return nil
}

type ghRepository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

type ghHeadCommit struct {
	Message string `json:"message"`
}

type pushEvent struct {
	Ref          string         `json:"ref"`
	After        string         `json:"after"`
	Repository   ghRepository   `json:"repository"`
	HeadCommit   ghHeadCommit   `json:"head_commit"`
	Installation ghInstallation `json:"installation"`
}

// handlePushEvent triggers a build for every project bound to this repo and
// branch, skipping any with auto_deploy disabled or that already have a
// build for this exact commit (spec §4.4 step 3, "push").
func (h *Handler) handlePushEvent(ctx context.Context, body []byte) (*deliverySummary, error) {
	var event pushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("parse push event: %w", err)
	}

	summary := &deliverySummary{}

	branch := strings.TrimPrefix(event.Ref, "refs/heads/")
	if branch == event.Ref {
		// not a branch push (e.g. a tag push); nothing to build.
		return summary, nil
	}

	repoID := fmt.Sprintf("%d", event.Repository.ID)
	projects, err := h.store.ProjectsForRepoAndBranch(ctx, repoID, branch)
	if err != nil {
		return nil, fmt.Errorf("look up projects for repo %s: %w", repoID, err)
	}

	commitSHA := event.After
	commitMessage := event.HeadCommit.Message
	if len(commitMessage) > maxCommitMessageLen {
		commitMessage = commitMessage[:maxCommitMessageLen]
	}

	for _, project := range projects {
		summary.Processed++

		if !project.AutoDeploy {
			summary.BuildsSkipped++
			continue
		}

		exists, err := h.store.BuildExistsForCommit(ctx, project.ID, commitSHA)
		if err != nil {
			return nil, fmt.Errorf("check existing build for project %s: %w", project.ID, err)
		}
		if exists {
			summary.BuildsSkipped++
			continue
		}

		push := &PushInfo{
			Branch:         branch,
			CommitSHA:      commitSHA,
			CommitMessage:  commitMessage,
			InstallationID: fmt.Sprintf("%d", event.Installation.ID),
		}
		if err := h.store.TriggerBuild(ctx, &project, push); err != nil {
			return nil, fmt.Errorf("trigger build for project %s: %w", project.ID, err)
		}
		summary.BuildsTriggered++
		h.log.Info().Str("project_id", project.ID).Str("commit", commitSHA).Msg("build triggered from push")
	}

	return summary, nil
}
