package handler

import (
	"fmt"
	"net/http"
	"strings"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required,min=6,max=20"`
	Name        string `json:"name" binding:"max=100"`
	Email       string `json:"email" binding:"omitempty,email"`
	Role        string `json:"role" binding:"required"`
}

// CreateUser registers an account. Admins only.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, known := models.ParseRole(req.Role)
	if !known {
		badRequest(c, fmt.Errorf("unknown role %q", req.Role))
		return
	}
	user := &models.User{
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Role:        role,
		IsActive:    true,
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, user)
}

// ListUsers lists accounts, optionally by role.
func (h *Handler) ListUsers(c *gin.Context) {
	var f storage.UserFilter
	var err error
	if f.Page, err = queryInt(c, "page"); err != nil {
		badRequest(c, err)
		return
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, err)
		return
	}
	if raw := c.Query("role"); raw != "" {
		role, known := models.ParseRole(raw)
		if !known {
			badRequest(c, fmt.Errorf("unknown role %q", raw))
			return
		}
		f.Role = role
	}

	users, total, err := h.Store.ListUsers(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	page, limit, _ := storage.Page(f.Page, f.Limit, config.DefaultUserPageSize, config.MaxPageSize)
	ok(c, http.StatusOK, Page{Items: users, Total: total, Page: page, Limit: limit})
}

// GetUser returns one account.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.Store.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

type updateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=100"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

// UpdateUser changes name, email, role or the active flag.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	user, err := h.Store.GetUserByID(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Role != nil {
		role, known := models.ParseRole(*req.Role)
		if !known {
			badRequest(c, fmt.Errorf("unknown role %q", *req.Role))
			return
		}
		user.Role = role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if err := h.Store.UpdateUser(ctx, user); err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}
