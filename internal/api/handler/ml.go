package handler

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"civicdesk/backend/internal/config"

	"github.com/gin-gonic/gin"
)

type predictRequest struct {
	Description string `json:"description" binding:"required,max=5000"`
}

// PredictCategory previews the category the desk would pick for a description.
func (h *Handler) PredictCategory(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	text := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(text) < config.MinPredictDescription {
		badRequest(c, fmt.Errorf("description must be at least %d characters", config.MinPredictDescription))
		return
	}
	prediction, err := h.Categorizer.Categorize(text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, prediction)
}

// ModelInfo describes the loaded classifier.
func (h *Handler) ModelInfo(c *gin.Context) {
	ok(c, http.StatusOK, h.Categorizer.Info())
}
