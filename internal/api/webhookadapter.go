package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/crypto"
	"github.com/shiplinehq/shipline/internal/queue"
	"github.com/shiplinehq/shipline/internal/store"
	"github.com/shiplinehq/shipline/internal/webhook"
)

// WebhookAdapter satisfies webhook.Store by bridging the string-typed
// installation/project shape the webhook package works with to the real
// *store.Store's uuid.UUID-keyed rows, and by translating a push event
// straight into an enqueued build job the same way CreateBuild does (spec
// §4.4 step 3, "push" → §4.1 "Queue submission").
type WebhookAdapter struct {
	store     *store.Store
	queue     *queue.Queue
	audit     *audit.Logger
	masterKey []byte
}

// NewWebhookAdapter builds a WebhookAdapter.
func NewWebhookAdapter(s *store.Store, q *queue.Queue, auditLogger *audit.Logger, masterKey []byte) *WebhookAdapter {
	return &WebhookAdapter{store: s, queue: q, audit: auditLogger, masterKey: masterKey}
}

// UpsertInstallation implements webhook.Store.
func (a *WebhookAdapter) UpsertInstallation(ctx context.Context, installation *webhook.Installation) error {
	inst := &store.SourceInstallation{
		ExternalInstallationID: installation.ExternalID,
		AccountLogin:           installation.AccountLogin,
		AccountID:              installation.AccountID,
		AccountType:            installation.AccountType,
	}
	return a.store.UpsertInstallation(ctx, inst)
}

// DeleteInstallationByExternalID implements webhook.Store.
func (a *WebhookAdapter) DeleteInstallationByExternalID(ctx context.Context, externalID string) error {
	return a.store.DeleteInstallationByExternalID(ctx, externalID)
}

// ProjectsForRepoAndBranch implements webhook.Store.
func (a *WebhookAdapter) ProjectsForRepoAndBranch(ctx context.Context, repoID, branch string) ([]webhook.Project, error) {
	projects, err := a.store.ProjectsForRepoAndBranch(ctx, repoID, branch)
	if err != nil {
		return nil, err
	}
	out := make([]webhook.Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, webhook.Project{
			ID:            p.ID.String(),
			DefaultBranch: p.DefaultBranch,
			AutoDeploy:    p.AutoDeploy,
		})
	}
	return out, nil
}

// BuildExistsForCommit implements webhook.Store.
func (a *WebhookAdapter) BuildExistsForCommit(ctx context.Context, projectID, commitSHA string) (bool, error) {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return false, fmt.Errorf("parse project id: %w", err)
	}
	return a.store.BuildExistsForCommit(ctx, id, commitSHA)
}

// TriggerBuild implements webhook.Store: it creates a pending build row and
// enqueues the same BuildJobData shape the dashboard's "create build"
// endpoint produces, carrying the push's commit metadata along (spec §4.1,
// "Queue submission").
func (a *WebhookAdapter) TriggerBuild(ctx context.Context, project *webhook.Project, push *webhook.PushInfo) error {
	projectID, err := uuid.Parse(project.ID)
	if err != nil {
		return fmt.Errorf("parse project id: %w", err)
	}

	fullProject, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	build := &store.Build{ProjectID: projectID}
	if push.CommitSHA != "" {
		build.CommitSHA = &push.CommitSHA
	}
	if push.CommitMessage != "" {
		build.CommitMessage = &push.CommitMessage
	}
	if err := a.store.CreateBuild(ctx, build); err != nil {
		return fmt.Errorf("create build: %w", err)
	}

	envVars, err := a.decryptedEnvVars(ctx, projectID)
	if err != nil {
		return a.failBuild(ctx, build, "failed to prepare environment for webhook-triggered build: "+err.Error())
	}

	job := &queue.BuildJob{
		BuildID:       build.ID,
		ProjectID:     projectID,
		RepoURL:       fullProject.RepoURL,
		RootDirectory: fullProject.RootDirectory,
		BuildCommand:  fullProject.BuildCommand,
		Framework:     string(fullProject.Framework),
		Branch:        push.Branch,
		EnvVars:       envVars,
	}
	if fullProject.InstallationID != nil {
		job.InstallationID = push.InstallationID
	}

	if err := a.queue.Enqueue(ctx, job); err != nil {
		return a.failBuild(ctx, build, "failed to enqueue webhook-triggered build: "+err.Error())
	}

	if a.audit != nil {
		a.audit.RecordBuildAction(ctx, "webhook", audit.ActionBuildTriggered, build.ID.String(), map[string]interface{}{
			"project_id": projectID.String(),
			"commit_sha": push.CommitSHA,
		})
	}
	return nil
}

func (a *WebhookAdapter) decryptedEnvVars(ctx context.Context, projectID uuid.UUID) (map[string]string, error) {
	vars, err := a.store.ListEnvironmentVariables(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list environment variables: %w", err)
	}
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		plaintext, err := crypto.Decrypt(a.masterKey, v.ValueCiphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", v.Key, err)
		}
		out[v.Key] = plaintext
	}
	return out, nil
}

func (a *WebhookAdapter) failBuild(ctx context.Context, build *store.Build, reason string) error {
	_ = a.store.TransitionBuildStatus(ctx, build.ID, store.BuildStatusFailed)
	_ = a.store.AppendLogEntries(ctx, []store.LogEntry{{
		BuildID: build.ID,
		Level:   store.LogLevelError,
		Message: reason,
	}})
	return errors.New(reason)
}
