package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shiplinehq/shipline/internal/audit"
	"github.com/shiplinehq/shipline/internal/crypto"
)

func (h *Handlers) encryptEnvValue(plaintext string) (string, error) {
	return crypto.Encrypt(h.masterKey, []byte(plaintext))
}

func (h *Handlers) decryptEnvValue(ciphertext string) (string, error) {
	return crypto.Decrypt(h.masterKey, ciphertext)
}

// SetEnvVarRequest is the body of POST /projects/:id/env.
type SetEnvVarRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// SetEnvVar encrypts and upserts a single project environment variable
// (spec §4.1, "Env vars: CRUD under a project with server-side
// encryption").
func (h *Handlers) SetEnvVar(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req SetEnvVarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ciphertext, err := h.encryptEnvValue(req.Value)
	if err != nil {
		internalError(c, err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.envVars.UpsertEnvironmentVariable(ctx, projectID, req.Key, ciphertext); err != nil {
		internalError(c, err.Error())
		return
	}

	if h.audit != nil {
		h.audit.RecordProjectAction(ctx, audit.ActorFromContext(ctx), audit.ActionEnvVarSet, projectID.String(), map[string]interface{}{"key": req.Key})
	}

	c.Status(http.StatusNoContent)
}

// ListEnvVars returns a project's environment variable keys (never
// plaintext values, since the response isn't decrypted).
func (h *Handlers) ListEnvVars(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	vars, err := h.envVars.ListEnvironmentVariables(ctx, projectID)
	if err != nil {
		internalError(c, err.Error())
		return
	}

	keys := make([]string, len(vars))
	for i, v := range vars {
		keys[i] = v.Key
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// DeleteEnvVar removes one environment variable key from a project.
func (h *Handlers) DeleteEnvVar(c *gin.Context) {
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	key := c.Param("key")

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.envVars.DeleteEnvironmentVariable(ctx, projectID, key); err != nil {
		respondStoreError(c, err, "environment variable not found")
		return
	}

	if h.audit != nil {
		h.audit.RecordProjectAction(ctx, audit.ActorFromContext(ctx), audit.ActionEnvVarDelete, projectID.String(), map[string]interface{}{"key": key})
	}

	c.Status(http.StatusNoContent)
}

// decryptedEnvMap returns a project's environment variables as a
// key→plaintext map, used when building a job payload (spec §4.1, "Queue
// submission").
func (h *Handlers) decryptedEnvMap(ctx context.Context, projectID uuid.UUID) (map[string]string, error) {
	vars, err := h.envVars.ListEnvironmentVariables(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(vars))
	for _, v := range vars {
		plaintext, err := h.decryptEnvValue(v.ValueCiphertext)
		if err != nil {
			return nil, err
		}
		result[v.Key] = plaintext
	}
	return result, nil
}
