package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiplinehq/shipline/internal/store"
)

// writeError renders the §7 error taxonomy's {error, message} envelope.
func writeError(c *gin.Context, status int, label, message string) {
	c.JSON(status, gin.H{"error": label, "message": message})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, "Bad Request", message)
}

func notFound(c *gin.Context, message string) {
	writeError(c, http.StatusNotFound, "Not Found", message)
}

func upstreamFailure(c *gin.Context, message string) {
	writeError(c, http.StatusBadGateway, "Upstream Failure", message)
}

func internalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	_ = message
}

// respondStoreError maps a store-layer error to the right HTTP status,
// per §7's NotFound/Fatal-internal split.
func respondStoreError(c *gin.Context, err error, notFoundMessage string) {
	if errors.Is(err, store.ErrNotFound) {
		notFound(c, notFoundMessage)
		return
	}
	internalError(c, err.Error())
}
