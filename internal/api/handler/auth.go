package handler

import (
	"net/http"

	"civicdesk/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

type devTokenRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// DevToken issues a token for an existing active user. Only mounted when
// DEV_TOKENS is enabled; production tokens come from the identity provider.
func (h *Handler) DevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.Store.GetUserByID(c.Request.Context(), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !user.IsActive {
		fail(c, http.StatusForbidden, "forbidden", "account is inactive")
		return
	}
	token, claims, err := h.Tokens.Issue(user)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": claims.ExpiresAt.Time,
		"user":      user,
	})
}

// Me returns the caller's account.
func (h *Handler) Me(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	user, err := h.Store.GetUserByID(c.Request.Context(), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

// Logout revokes the presented token.
func (h *Handler) Logout(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if h.Revoker == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "token revocation is not configured")
		return
	}
	if err := h.Revoker.RevokeToken(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"revoked": claims.ID})
}
