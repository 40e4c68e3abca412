// Package store is the Control Plane's persistence layer: Postgres via
// lib/pq + jmoiron/sqlx, schema migrations via golang-migrate, modeled on
// the teacher repo's store package but re-keyed to UUIDs per spec §3.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Framework identifies the supported application frameworks (spec §3).
type Framework string

const (
	FrameworkNextJS  Framework = "nextjs"
	FrameworkVite    Framework = "vite"
	FrameworkExpress Framework = "express"
	FrameworkHono    Framework = "hono"
	FrameworkElysia  Framework = "elysia"
)

// IsValid reports whether f is one of the five supported frameworks.
func (f Framework) IsValid() bool {
	switch f {
	case FrameworkNextJS, FrameworkVite, FrameworkExpress, FrameworkHono, FrameworkElysia:
		return true
	}
	return false
}

// IsFrontend reports whether f is built and served as static assets.
func (f Framework) IsFrontend() bool {
	return f == FrameworkNextJS || f == FrameworkVite
}

// IsBackend reports whether f runs as a long-lived server process.
func (f Framework) IsBackend() bool {
	return f == FrameworkExpress || f == FrameworkHono || f == FrameworkElysia
}

// BuildStatus is the build lifecycle state (spec §3).
type BuildStatus string

const (
	BuildStatusPending  BuildStatus = "pending"
	BuildStatusBuilding BuildStatus = "building"
	BuildStatusSuccess  BuildStatus = "success"
	BuildStatusFailed   BuildStatus = "failed"
)

// IsTerminal reports whether s is success or failed (spec §3, §8 invariant 3).
func (s BuildStatus) IsTerminal() bool {
	return s == BuildStatusSuccess || s == BuildStatusFailed
}

// DeploymentStatus is a deployment's activation state (spec §3).
type DeploymentStatus string

const (
	DeploymentStatusActive   DeploymentStatus = "active"
	DeploymentStatusInactive DeploymentStatus = "inactive"
)

// LogLevel is the level tag on a persisted log entry (spec §3, §8 invariant 5).
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
	LogLevelDeploy  LogLevel = "deploy"
)

// IsValid reports whether l is one of the five defined log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelSuccess, LogLevelDeploy:
		return true
	}
	return false
}

// Project is a deployable application bound to a stable port (spec §3).
type Project struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	RepoURL          string     `db:"repo_url" json:"repo_url"`
	RepoID           *string    `db:"repo_id" json:"repo_id,omitempty"`
	DefaultBranch    string     `db:"default_branch" json:"default_branch"`
	RootDirectory    string     `db:"root_directory" json:"root_directory"`
	BuildCommand     string     `db:"build_command" json:"build_command"`
	Framework        Framework  `db:"framework" json:"framework"`
	Domain           *string    `db:"domain" json:"domain,omitempty"`
	Port             int        `db:"port" json:"port"`
	InstallationID   *uuid.UUID `db:"installation_id" json:"installation_id,omitempty"`
	AutoDeploy       bool       `db:"auto_deploy" json:"auto_deploy"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Build is one attempt to produce a deployable artifact for a project
// (spec §3).
type Build struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ProjectID      uuid.UUID   `db:"project_id" json:"project_id"`
	Status         BuildStatus `db:"status" json:"status"`
	CommitSHA      *string     `db:"commit_sha" json:"commit_sha,omitempty"`
	CommitMessage  *string     `db:"commit_message" json:"commit_message,omitempty"`
	ArtifactID     *string     `db:"artifact_id" json:"artifact_id,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}

// Deployment is an activation record for a build on a project's port
// (spec §3).
type Deployment struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	ProjectID    uuid.UUID        `db:"project_id" json:"project_id"`
	BuildID      uuid.UUID        `db:"build_id" json:"build_id"`
	Status       DeploymentStatus `db:"status" json:"status"`
	ActivatedAt  time.Time        `db:"activated_at" json:"activated_at"`
}

// LogEntry is one timestamped, level-tagged line in a build's log stream
// (spec §3).
type LogEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BuildID   uuid.UUID `db:"build_id" json:"build_id"`
	Level     LogLevel  `db:"level" json:"level"`
	Message   string    `db:"message" json:"message"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// EnvironmentVariable is one project-scoped, encrypted-at-rest key/value
// pair (spec §3).
type EnvironmentVariable struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ProjectID        uuid.UUID `db:"project_id" json:"project_id"`
	Key              string    `db:"key" json:"key"`
	ValueCiphertext  string    `db:"value_ciphertext" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SourceInstallation is a source-control app installation granting project
// access to a set of repositories (spec §3).
type SourceInstallation struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	ExternalInstallationID string    `db:"external_installation_id" json:"external_installation_id"`
	AccountLogin           string    `db:"account_login" json:"account_login"`
	AccountID              string    `db:"account_id" json:"account_id"`
	AccountType            string    `db:"account_type" json:"account_type"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}

// BuildWithDeployment is a Build row joined with its project's active
// deployment info, used by the builds-list endpoint (spec §4.1).
type BuildWithDeployment struct {
	Build
	ActiveDeploymentID *uuid.UUID `db:"active_deployment_id" json:"active_deployment_id,omitempty"`
}

// AuditEntry records one mutating action against Control Plane state. It is
// ambient observability, not part of the core spec data model.
type AuditEntry struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	Timestamp time.Time              `db:"timestamp" json:"timestamp"`
	Actor     string                 `db:"actor" json:"actor"`
	Action    string                 `db:"action" json:"action"`
	TargetType string                `db:"target_type" json:"target_type"`
	TargetID  string                 `db:"target_id" json:"target_id"`
	Meta      map[string]interface{} `db:"-" json:"meta,omitempty"`
	MetaJSON  []byte                 `db:"meta" json:"-"`
}
