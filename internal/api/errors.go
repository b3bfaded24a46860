package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"trolley-pm/internal/logging"
	"trolley-pm/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps an engine error onto a status code and aborts the request.
func writeError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, store.ErrUnknownIdentity):
		status, kind = http.StatusNotFound, "unknown_identity"
	case errors.Is(err, store.ErrDuplicateIdentity):
		status, kind = http.StatusConflict, "duplicate_identity"
	case errors.Is(err, store.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, store.ErrInvariantViolation):
		kind = "invariant_violation"
	}
	if status >= http.StatusInternalServerError {
		logging.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	writeError(c, fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...)))
}
