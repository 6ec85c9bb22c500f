package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the access level of a user.
type Role string

const (
	RoleCitizen Role = "CITIZEN"
	RoleWorker  Role = "WORKER"
	RoleOfficer Role = "OFFICER"
	RoleAdmin   Role = "ADMIN"
)

// Roles lists every role in ascending privilege order.
var Roles = []Role{RoleCitizen, RoleWorker, RoleOfficer, RoleAdmin}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// User is a registered account: citizen, field worker, officer or admin.
type User struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	PhoneNumber string    `gorm:"uniqueIndex;not null" json:"phoneNumber"`
	Name        string    `json:"name"`
	Email       string    `gorm:"index" json:"email"`
	Role        Role      `gorm:"type:text;not null;index" json:"role"`
	IsActive    bool      `gorm:"not null" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the ID is empty.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// Is reports whether the actor holds one of the given roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
