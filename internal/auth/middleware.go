package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "auth.claims"

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Middleware authenticates requests with bearer tokens.
type Middleware struct {
	tokens  *TokenService
	users   UserLookup
	revoker storage.TokenRevoker
	logger  *zap.Logger
}

// NewMiddleware builds the middleware. revoker may be nil.
func NewMiddleware(tokens *TokenService, users UserLookup, revoker storage.TokenRevoker, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{tokens: tokens, users: users, revoker: revoker, logger: logger}
}

func bearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	// Browsers cannot set headers on a websocket handshake.
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": code, "message": message})
}

// Authenticate verifies the token, checks revocation and the account state,
// and stores the caller in the request context. The role comes from the
// account, so role changes apply to tokens already issued.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			abort(c, http.StatusUnauthorized, "unauthenticated", "authorization token missing")
			return
		}
		claims, err := m.tokens.Verify(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
			return
		}

		ctx := c.Request.Context()
		if m.revoker != nil {
			revoked, err := m.revoker.IsTokenRevoked(ctx, claims.ID)
			if err != nil {
				m.logger.Error("revocation check failed", zap.String("jti", claims.ID), zap.Error(err))
				abort(c, http.StatusServiceUnavailable, "unavailable", "cannot verify token right now")
				return
			}
			if revoked {
				abort(c, http.StatusUnauthorized, "unauthenticated", "token has been revoked")
				return
			}
		}

		user, err := m.users.GetUserByID(ctx, claims.Subject)
		if errors.Is(err, storage.ErrNotFound) {
			abort(c, http.StatusUnauthorized, "unauthenticated", "account no longer exists")
			return
		}
		if err != nil {
			m.logger.Error("user lookup failed", zap.String("user_id", claims.Subject), zap.Error(err))
			abort(c, http.StatusInternalServerError, "internal", "internal server error")
			return
		}
		if !user.IsActive {
			abort(c, http.StatusUnauthorized, "unauthenticated", "account is inactive")
			return
		}

		claims.Role = user.Role
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(lifecycle.WithActor(ctx, claims.Actor()))
		c.Next()
	}
}

// RequireRole rejects callers without one of roles. It must run after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthenticated", "authorization token missing")
			return
		}
		if !claims.Actor().Is(roles...) {
			abort(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Authenticate.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
