package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"machine-health-backend/internal/errs"
)

// writeError translates the core error taxonomy into HTTP responses.
// Anything the taxonomy doesn't name is a 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errs.IsValidation(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errs.IsNotFound(err):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errs.IsInvalidTransition(err):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
