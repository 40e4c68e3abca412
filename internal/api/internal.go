package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiplinehq/shipline/internal/pubsub"
	"github.com/shiplinehq/shipline/internal/store"
)

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// PostBuildLogRequest is one log line submitted by the Build Worker or
// Deploy Engine (spec §6, "POST /builds/:id/logs body {logs, level}").
type PostBuildLogRequest struct {
	Logs  string         `json:"logs"`
	Level store.LogLevel `json:"level"`
}

// PostBuildLog persists a log line then fans it out to any dashboard
// websocket subscribed to this build, unauthenticated and reachable only
// from the internal network (spec §4.1).
func (h *Handlers) PostBuildLog(c *gin.Context) {
	buildID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req PostBuildLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Logs == "" {
		badRequest(c, "logs is required")
		return
	}
	if req.Level == "" {
		req.Level = store.LogLevelInfo
	}
	if !req.Level.IsValid() {
		badRequest(c, "invalid log level")
		return
	}
	timestamp := time.Now().UTC()

	ctx, cancel := requestContext(c)
	defer cancel()

	entry := store.LogEntry{
		BuildID:   buildID,
		Level:     req.Level,
		Message:   req.Logs,
		Timestamp: timestamp,
	}
	if err := h.builds.AppendLogEntries(ctx, []store.LogEntry{entry}); err != nil {
		internalError(c, err.Error())
		return
	}

	h.hub.Publish(buildID, pubsub.Message{
		Level:     string(req.Level),
		Text:      req.Logs,
		Timestamp: timestamp.Unix(),
	})

	c.Status(http.StatusNoContent)
}

// PutBuildStatusRequest transitions a build's status (spec §6, "PUT
// /builds/:id body {status}").
type PutBuildStatusRequest struct {
	Status store.BuildStatus `json:"status"`
}

// PutBuildStatus advances a build's lifecycle status. A transition into
// success triggers auto-activation in the background; an activation
// failure is logged at level=error into the build's own log stream and
// never reverts the build status back off success (spec §4.1, "Auto
// activation on success").
func (h *Handlers) PutBuildStatus(c *gin.Context) {
	buildID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req PutBuildStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	switch req.Status {
	case store.BuildStatusPending, store.BuildStatusBuilding, store.BuildStatusSuccess, store.BuildStatusFailed:
	default:
		badRequest(c, "invalid build status")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.builds.TransitionBuildStatus(ctx, buildID, req.Status); err != nil {
		if err == store.ErrTerminalBuild {
			badRequest(c, err.Error())
			return
		}
		respondStoreError(c, err, "build not found")
		return
	}

	if req.Status == store.BuildStatusSuccess {
		build, err := h.builds.GetBuild(ctx, buildID)
		if err == nil {
			project, perr := h.projects.GetProject(ctx, build.ProjectID)
			if perr == nil && project.AutoDeploy {
				go h.autoActivate(project, build)
			}
		}
	}

	c.Status(http.StatusNoContent)
}

// autoActivate runs activation outside the request's lifetime: it gets its
// own background context so a slow Deploy Engine doesn't hold the PUT
// request open, and any failure is recorded as a build log line rather
// than surfaced to a caller who has already moved on.
func (h *Handlers) autoActivate(project *store.Project, build *store.Build) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	if err := h.activateProjectBuild(ctx, project, build); err != nil {
		_ = h.builds.AppendLogEntries(ctx, []store.LogEntry{{
			BuildID:   build.ID,
			Level:     store.LogLevelError,
			Message:   "auto-activation failed: " + err.Error(),
			Timestamp: time.Now().UTC(),
		}})
		h.hub.Publish(build.ID, pubsub.Message{
			Level:     string(store.LogLevelError),
			Text:      "auto-activation failed: " + err.Error(),
			Timestamp: time.Now().Unix(),
		})
	}
}

// DeleteBuildQueue drains every pending job from the queue, an admin
// escape hatch for clearing a backed-up or misconfigured queue (spec §6,
// "DELETE /builds/queue (admin): drain queue").
func (h *Handlers) DeleteBuildQueue(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	drained, err := h.queue.Drain(ctx)
	if err != nil {
		internalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"drained": drained})
}
