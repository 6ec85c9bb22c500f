package handler

import (
	"errors"
	"net/http"
	"strconv"

	"civicdesk/backend/internal/auth"
	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Page is the data of a paginated list response.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: code, Message: message})
}

// writeError maps service errors to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validation *lifecycle.ValidationError
		forbidden  *lifecycle.ForbiddenError
		transition *lifecycle.InvalidTransitionError
		worker     *lifecycle.InvalidWorkerError
	)
	switch {
	case errors.As(err, &validation):
		fail(c, http.StatusBadRequest, "validation", validation.Error())
	case errors.As(err, &worker):
		fail(c, http.StatusBadRequest, "invalid_worker", worker.Error())
	case errors.Is(err, lifecycle.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		fail(c, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.As(err, &forbidden):
		fail(c, http.StatusForbidden, "forbidden", forbidden.Error())
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "resource not found")
	case errors.As(err, &transition):
		code := "invalid_transition"
		if transition.Stale {
			code = "stale"
		}
		fail(c, http.StatusConflict, code, transition.Error())
	case errors.Is(err, storage.ErrDuplicate):
		fail(c, http.StatusConflict, "duplicate", "a record with the same unique field exists")
	case errors.Is(err, categorizer.ErrPredictionUnavailable):
		fail(c, http.StatusServiceUnavailable, "prediction_unavailable", "no classifier is loaded")
	default:
		h.Logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func badRequest(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, "validation", err.Error())
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
