// Package handler exposes the complaint desk over HTTP and websockets.
package handler

import (
	"net/http"

	"civicdesk/backend/internal/analysis"
	"civicdesk/backend/internal/auth"
	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/events"
	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the services the handlers call.
type Deps struct {
	Manager     *lifecycle.Manager
	Store       storage.Storage
	Categorizer *categorizer.Service
	Stats       *analysis.Service
	Tokens      *auth.TokenService
	Revoker     storage.TokenRevoker
	Hub         *events.Hub
	DevTokens   bool
	Logger      *zap.Logger
}

// Handler holds the dependencies of every route.
type Handler struct {
	Deps
}

// NewHandler builds a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{Deps: d}
}

// Router wires every route on a fresh gin engine.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(AccessLog(h.Logger), Recovery(h.Logger))

	mw := auth.NewMiddleware(h.Tokens, h.Store, h.Revoker, h.Logger)
	authed := mw.Authenticate()
	staff := auth.RequireRole(models.RoleOfficer, models.RoleAdmin)
	admin := auth.RequireRole(models.RoleAdmin)

	r.GET("/health", h.Health)
	r.GET("/ws/events", authed, h.ServeWebSocket)

	api := r.Group("/api")
	{
		a := api.Group("/auth")
		if h.DevTokens {
			a.POST("/dev-token", h.DevToken)
		}
		a.GET("/me", authed, h.Me)
		a.POST("/logout", authed, h.Logout)
	}
	{
		ml := api.Group("/ml", authed)
		ml.GET("/predict-category", h.ModelInfo)
		ml.POST("/predict-category", h.PredictCategory)
	}
	{
		c := api.Group("/complaints", authed)
		c.POST("", h.CreateComplaint)
		c.GET("", h.ListComplaints)
		c.GET("/:id", h.GetComplaint)
		c.PATCH("/:id", h.UpdateMetadata)
		c.DELETE("/:id", h.DeleteComplaint)
		c.POST("/:id/assign", h.AssignWorker)
		c.POST("/:id/reassign", h.ReassignWorker)
		c.POST("/:id/start", h.StartWork)
		c.POST("/:id/proofs", h.SubmitProof)
		c.GET("/:id/proofs", h.ListProofs)
		c.POST("/:id/resolve", h.MarkResolved)
		c.POST("/:id/reject", h.Reject)
		c.GET("/:id/events", h.History)
	}
	api.GET("/dashboard/stats", authed, staff, h.DashboardStats)
	{
		u := api.Group("/users", authed, admin)
		u.GET("", h.ListUsers)
		u.POST("", h.CreateUser)
		u.GET("/:id", h.GetUser)
		u.PATCH("/:id", h.UpdateUser)
	}

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

// Health reports liveness and the categorizer mode.
func (h *Handler) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok", "categorizer": h.Categorizer.Info().Source})
}
