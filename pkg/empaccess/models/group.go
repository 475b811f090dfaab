package models

import "time"

// Group is a named bundle of security ids granted to every active member.
// Groups are never hard-deleted; deactivation sets IsActive to false.
type Group struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedBy   string    `json:"created_by,omitempty"`

	// Relationships
	Members     []GroupMembership         `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Assignments []GroupSecurityAssignment `gorm:"foreignKey:GroupID" json:"assignments,omitempty"`
}
