package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/inkwell/internal/database"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classifyError maps a store failure onto an HTTP status and a stable machine-readable code.
func classifyError(err error) (int, string) {
	code := ""
	var operationErr *storage.OperationError
	if errors.As(err, &operationErr) {
		code = operationErr.Code()
	}
	switch {
	case errors.Is(err, storage.ErrValidation):
		return http.StatusBadRequest, withDefault(code, "request.validation_failed")
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, withDefault(code, "record.not_found")
	case errors.Is(err, storage.ErrNotConnected):
		return http.StatusConflict, "store.not_connected"
	case errors.Is(err, database.ErrMigrationFailed):
		return http.StatusServiceUnavailable, "store.migration_failed"
	case errors.Is(err, database.ErrSchemaTooNew):
		return http.StatusInternalServerError, "store.schema_too_new"
	default:
		return http.StatusInternalServerError, withDefault(code, "store.io_failed")
	}
}

func withDefault(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Code: code})
}

func (h *httpHandler) respondInvalidRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "request.invalid"})
}

func respondList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, items)
}
