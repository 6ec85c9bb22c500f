package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Action names a lifecycle event applied to a complaint.
type Action string

const (
	ActionCreate         Action = "create"
	ActionAssign         Action = "assign"
	ActionReassign       Action = "reassign"
	ActionStart          Action = "start"
	ActionSubmitProof    Action = "submit_proof"
	ActionResolve        Action = "resolve"
	ActionReject         Action = "reject"
	ActionUpdateMetadata Action = "update_metadata"
	ActionDelete         Action = "delete"
)

// ComplaintEvent is one entry of a complaint's audit trail. The same record is
// published to live subscribers once the write has committed.
type ComplaintEvent struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ComplaintID string    `gorm:"not null;index" json:"complaintId"`
	Action      Action    `gorm:"type:text;not null" json:"action"`
	ActorID     string    `gorm:"not null" json:"actorId"`
	ActorRole   Role      `gorm:"type:text;not null" json:"actorRole"`
	FromStatus  Status    `gorm:"type:text" json:"fromStatus,omitempty"`
	ToStatus    Status    `gorm:"type:text" json:"toStatus,omitempty"`
	Details     string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`

	// Routing fields for live subscribers; not persisted.
	CitizenID string `gorm:"-" json:"citizenId,omitempty"`
	WorkerID  string `gorm:"-" json:"workerId,omitempty"`
	// PreviousWorkerID is the worker a reassignment took the complaint from.
	PreviousWorkerID string `gorm:"-" json:"previousWorkerId,omitempty"`
}

// BeforeCreate assigns a UUID when the ID is empty.
func (e *ComplaintEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return
}
