// Package storage persists users, complaints and their evidence trail.
package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"civicdesk/backend/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrVersionConflict is returned when a complaint changed since it was read.
	ErrVersionConflict = errors.New("storage: complaint was modified concurrently")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("storage: duplicate record")
)

// ComplaintFilter narrows ListComplaints. Zero values are ignored.
type ComplaintFilter struct {
	Status    models.Status
	Category  models.Category
	Priority  models.Priority
	CitizenID string
	// WorkerID keeps complaints that have any assignment to the worker.
	WorkerID string
	Page     int
	Limit    int
}

// UserFilter narrows ListUsers. Zero values are ignored.
type UserFilter struct {
	Role  models.Role
	Page  int
	Limit int
}

// ComplaintUpdate is one atomic lifecycle write. Complaint carries the new
// state; it is stored only if the row still has ExpectedVersion. The other
// fields are optional records written in the same transaction.
type ComplaintUpdate struct {
	Complaint       *models.Complaint
	ExpectedVersion int64
	// NewAssignment becomes the active assignment; any previous active one is superseded.
	NewAssignment *models.Assignment
	WorkProof     *models.WorkProof
	Event         *models.ComplaintEvent
}

// Storage is the persistence collaborator used by the services.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, int64, error)

	CreateComplaint(ctx context.Context, c *models.Complaint, ev *models.ComplaintEvent) error
	GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error)
	ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, int64, error)
	ApplyUpdate(ctx context.Context, u ComplaintUpdate) error
	DeleteComplaint(ctx context.Context, id string) error

	ActiveAssignment(ctx context.Context, complaintID string) (*models.Assignment, error)
	ListAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error)
	ListWorkProofs(ctx context.Context, complaintID string) ([]models.WorkProof, error)
	ListEvents(ctx context.Context, complaintID string) ([]models.ComplaintEvent, error)

	CountComplaintsByStatus(ctx context.Context) (map[models.Status]int64, error)
	CountComplaintsByCategory(ctx context.Context) (map[models.Category]int64, error)
	CountUsersByRole(ctx context.Context) (map[models.Role]int64, error)
}

// TokenRevoker records revoked bearer token ids until they expire.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, until time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Page normalises page and limit and returns the row offset.
func Page(page, limit, defaultLimit, maxLimit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	// Past this page the offset would overflow; such pages are empty anyway.
	if last := math.MaxInt/limit + 1; page > last {
		page = last
	}
	return page, limit, (page - 1) * limit
}
