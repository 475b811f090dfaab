// Package apierr maps domain errors onto HTTP responses.
package apierr

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity), errors.Is(err, access.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, access.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes {"error": ...} for err. Client errors echo the error text;
// server errors are logged and answered with a generic message.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	status := Status(err)
	switch status {
	case http.StatusInternalServerError:
		if logger != nil {
			logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error"})
	case http.StatusGatewayTimeout:
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Request timed out"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
