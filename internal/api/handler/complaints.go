package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type createComplaintRequest struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Description string   `json:"description" binding:"required,max=5000"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Location    string   `json:"location" binding:"max=500"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	MediaURLs   []string `json:"mediaUrls" binding:"max=10"`
	CitizenID   string   `json:"citizenId"`
}

// CreateComplaint files a complaint. Without a category one is predicted.
func (h *Handler) CreateComplaint(c *gin.Context) {
	var req createComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	complaint, err := h.Manager.CreateComplaint(c.Request.Context(), lifecycle.NewComplaint{
		Title:       req.Title,
		Description: req.Description,
		Category:    models.Category(req.Category),
		Priority:    models.Priority(req.Priority),
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		MediaURLs:   req.MediaURLs,
		CitizenID:   req.CitizenID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, complaint)
}

// ListComplaints lists the complaints visible to the caller.
func (h *Handler) ListComplaints(c *gin.Context) {
	var f storage.ComplaintFilter
	var err error
	if f.Page, err = queryInt(c, "page"); err != nil {
		badRequest(c, err)
		return
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, err)
		return
	}
	if raw := c.Query("status"); raw != "" {
		s, known := models.ParseStatus(raw)
		if !known {
			badRequest(c, fmt.Errorf("unknown status %q", raw))
			return
		}
		f.Status = s
	}
	if raw := c.Query("category"); raw != "" {
		cat, known := models.ParseCategory(raw)
		if !known {
			badRequest(c, fmt.Errorf("unknown category %q", raw))
			return
		}
		f.Category = cat
	}
	if raw := c.Query("priority"); raw != "" {
		p, known := models.ParsePriority(raw)
		if !known {
			badRequest(c, fmt.Errorf("unknown priority %q", raw))
			return
		}
		f.Priority = p
	}
	f.CitizenID = c.Query("citizenId")

	items, total, err := h.Manager.ListComplaints(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	page, limit, _ := storage.Page(f.Page, f.Limit, config.DefaultPageSize, config.MaxPageSize)
	ok(c, http.StatusOK, Page{Items: items, Total: total, Page: page, Limit: limit})
}

// GetComplaint returns one complaint with its active assignment.
func (h *Handler) GetComplaint(c *gin.Context) {
	detail, err := h.Manager.GetComplaint(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, detail)
}

type metadataRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
	Category    *string `json:"category"`
	Priority    *string `json:"priority"`
}

// UpdateMetadata edits title, description, category or priority.
func (h *Handler) UpdateMetadata(c *gin.Context) {
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch := lifecycle.MetadataPatch{Title: req.Title, Description: req.Description}
	if req.Category != nil {
		cat, known := models.ParseCategory(*req.Category)
		if !known {
			badRequest(c, fmt.Errorf("unknown category %q", *req.Category))
			return
		}
		patch.Category = &cat
	}
	if req.Priority != nil {
		p, known := models.ParsePriority(*req.Priority)
		if !known {
			badRequest(c, fmt.Errorf("unknown priority %q", *req.Priority))
			return
		}
		patch.Priority = &p
	}

	complaint, err := h.Manager.UpdateMetadata(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, complaint)
}

// DeleteComplaint removes a complaint. Admins only.
func (h *Handler) DeleteComplaint(c *gin.Context) {
	if err := h.Manager.DeleteComplaint(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

type assignRequest struct {
	WorkerID string     `json:"workerId" binding:"required"`
	Deadline *time.Time `json:"deadline"`
	Notes    string     `json:"notes" binding:"max=1000"`
}

// AssignWorker assigns a pending complaint.
func (h *Handler) AssignWorker(c *gin.Context) {
	h.assign(c, h.Manager.AssignWorker)
}

// ReassignWorker hands an assigned complaint to another worker.
func (h *Handler) ReassignWorker(c *gin.Context) {
	h.assign(c, h.Manager.ReassignWorker)
}

func (h *Handler) assign(c *gin.Context, op func(ctx context.Context, id string, in lifecycle.Assignment) (*models.Complaint, error)) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	complaint, err := op(c.Request.Context(), c.Param("id"), lifecycle.Assignment{
		WorkerID: req.WorkerID,
		Deadline: req.Deadline,
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, complaint)
}

// StartWork is called by the assigned worker.
func (h *Handler) StartWork(c *gin.Context) {
	complaint, err := h.Manager.StartWork(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, complaint)
}

type proofRequest struct {
	BeforeMedia []string `json:"beforeMedia" binding:"max=10"`
	AfterMedia  []string `json:"afterMedia" binding:"max=10"`
	Notes       string   `json:"notes" binding:"max=1000"`
}

// SubmitProof records before/after evidence.
func (h *Handler) SubmitProof(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	proof, err := h.Manager.SubmitProof(c.Request.Context(), c.Param("id"), lifecycle.Proof{
		BeforeMedia: req.BeforeMedia,
		AfterMedia:  req.AfterMedia,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, proof)
}

// ListProofs returns the work proofs of a complaint.
func (h *Handler) ListProofs(c *gin.Context) {
	proofs, err := h.Manager.Proofs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if proofs == nil {
		proofs = []models.WorkProof{}
	}
	ok(c, http.StatusOK, proofs)
}

// MarkResolved closes a complaint as resolved.
func (h *Handler) MarkResolved(c *gin.Context) {
	complaint, err := h.Manager.MarkResolved(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, complaint)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// Reject closes a complaint with a reason.
func (h *Handler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	complaint, err := h.Manager.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, complaint)
}

// History returns the audit trail.
func (h *Handler) History(c *gin.Context) {
	trail, err := h.Manager.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if trail == nil {
		trail = []models.ComplaintEvent{}
	}
	ok(c, http.StatusOK, trail)
}

// DashboardStats returns the staff dashboard summary.
func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.Stats.Dashboard(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}
