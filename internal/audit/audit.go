// Package audit records mutating Control Plane actions for later review,
// ported from the teacher repo's internal/audit/audit.go with the Action
// set narrowed to the build-and-deploy domain.
package audit

import (
	"context"

	"github.com/shiplinehq/shipline/internal/store"
)

// Action enumerates the auditable actions in the build-and-deploy pipeline.
type Action string

const (
	ActionProjectCreate    Action = "project_create"
	ActionProjectUpdate    Action = "project_update"
	ActionProjectDelete    Action = "project_delete"
	ActionBuildTriggered   Action = "build_triggered"
	ActionBuildCanceled    Action = "build_canceled"
	ActionDeploymentActivate Action = "deployment_activate"
	ActionDeploymentStop   Action = "deployment_stop"
	ActionEnvVarSet        Action = "env_var_set"
	ActionEnvVarDelete     Action = "env_var_delete"
	ActionWebhookDelivery  Action = "webhook_delivery"
	ActionCertificateIssue Action = "certificate_issue"
	ActionCertificateRenew Action = "certificate_renew"
	ActionNginxReload      Action = "nginx_reload"
)

// Entry is a single audit log row.
type Entry struct {
	Actor      string
	Action     Action
	TargetType string
	TargetID   string
	Meta       map[string]interface{}
}

// Store is the persistence surface the audit logger needs.
type Store interface {
	InsertAuditEntry(ctx context.Context, entry *store.AuditEntry) error
}

// Logger records audit entries, best-effort: a failed write is silently
// discarded and never fails the caller's request.
type Logger struct {
	store Store
}

// New builds a Logger. A nil store is valid and makes every Record call a
// silent no-op, useful for tests that don't care about audit output.
func New(s Store) *Logger {
	return &Logger{store: s}
}

// Record writes one audit entry.
func (l *Logger) Record(ctx context.Context, actor string, action Action, targetType, targetID string, meta map[string]interface{}) {
	if l.store == nil {
		return
	}
	_ = l.store.InsertAuditEntry(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     string(action),
		TargetType: targetType,
		TargetID:   targetID,
		Meta:       meta,
	})
}

// RecordProjectAction records a project-scoped action.
func (l *Logger) RecordProjectAction(ctx context.Context, actor string, action Action, projectID string, meta map[string]interface{}) {
	l.Record(ctx, actor, action, "project", projectID, meta)
}

// RecordBuildAction records a build-scoped action.
func (l *Logger) RecordBuildAction(ctx context.Context, actor string, action Action, buildID string, meta map[string]interface{}) {
	l.Record(ctx, actor, action, "build", buildID, meta)
}

// RecordDeploymentAction records a deployment-scoped action.
func (l *Logger) RecordDeploymentAction(ctx context.Context, actor string, action Action, deploymentID string, meta map[string]interface{}) {
	l.Record(ctx, actor, action, "deployment", deploymentID, meta)
}

// ActorFromContext extracts the calling actor set on the context by
// WithActor; requests with none are attributed to "system". The
// admin-token middleware does not set an actor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

type actorContextKey struct{}

// WithActor returns a context carrying actor for later retrieval by
// ActorFromContext.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}
