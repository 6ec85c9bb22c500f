package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Category is a complaint type tag. The set is closed and shared with the classifier.
type Category string

const (
	CategoryRoad        Category = "ROAD"
	CategoryWater       Category = "WATER"
	CategoryGarbage     Category = "GARBAGE"
	CategoryElectricity Category = "ELECTRICITY"
	CategoryDrainage    Category = "DRAINAGE"
	CategoryStreetLight Category = "STREET_LIGHT"
	CategoryOther       Category = "OTHER"
)

// Categories is the label set in its canonical order.
var Categories = []Category{
	CategoryRoad,
	CategoryWater,
	CategoryGarbage,
	CategoryElectricity,
	CategoryDrainage,
	CategoryStreetLight,
	CategoryOther,
}

// ParseCategory normalises s and reports whether it names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Status is the lifecycle state of a complaint.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every state in lifecycle order.
var Statuses = []Status{StatusPending, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// ParseStatus normalises s and reports whether it names a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Priority is the urgency an officer assigns to a complaint.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists every priority in ascending urgency.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority normalises s and reports whether it names a known priority.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Priorities {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Complaint is a citizen-filed issue report.
type Complaint struct {
	ID              string         `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"not null" json:"title"`
	Description     string         `gorm:"type:text;not null" json:"description"`
	Category        Category       `gorm:"type:text;not null;index" json:"category"`
	Status          Status         `gorm:"type:text;not null;index" json:"status"`
	Priority        Priority       `gorm:"type:text;not null" json:"priority"`
	CitizenID       string         `gorm:"not null;index" json:"citizenId"`
	Location        string         `json:"location,omitempty"`
	Latitude        *float64       `json:"latitude,omitempty"`
	Longitude       *float64       `json:"longitude,omitempty"`
	MediaURLs       pq.StringArray `gorm:"type:text[]" json:"mediaUrls"`
	IsAICategorized bool           `gorm:"column:is_ai_categorized" json:"isAiCategorized"`
	AIConfidence    float64        `gorm:"column:ai_confidence" json:"aiConfidence,omitempty"`
	RejectionReason string         `gorm:"type:text" json:"rejectionReason,omitempty"`
	// Version is the optimistic concurrency token, bumped on every write.
	Version    int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// BeforeCreate assigns a UUID when the ID is empty.
func (c *Complaint) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// Assignment links a complaint to the worker doing the job and the officer who assigned it.
// Rows are never rewritten except to mark them superseded by a reassignment.
type Assignment struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	ComplaintID  string     `gorm:"not null;index" json:"complaintId"`
	WorkerID     string     `gorm:"not null;index" json:"workerId"`
	OfficerID    string     `gorm:"not null" json:"officerId"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Notes        string     `gorm:"type:text" json:"notes,omitempty"`
	Active       bool       `gorm:"not null;index" json:"active"`
	AssignedAt   time.Time  `json:"assignedAt"`
	SupersededAt *time.Time `json:"supersededAt,omitempty"`
}

// BeforeCreate assigns a UUID when the ID is empty.
func (a *Assignment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

// WorkProof is evidence uploaded by the assigned worker.
type WorkProof struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ComplaintID string         `gorm:"not null;index" json:"complaintId"`
	WorkerID    string         `gorm:"not null" json:"workerId"`
	BeforeMedia pq.StringArray `gorm:"type:text[]" json:"beforeMedia"`
	AfterMedia  pq.StringArray `gorm:"type:text[]" json:"afterMedia"`
	Notes       string         `gorm:"type:text" json:"notes,omitempty"`
	UploadedAt  time.Time      `gorm:"index" json:"uploadedAt"`
}

// BeforeCreate assigns a UUID when the ID is empty.
func (p *WorkProof) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}
