package models

import "time"

// GroupMembership links an account to a group.
// Removal stamps RemovedBy/RemovedDate and clears IsActive; rows are kept for audit.
type GroupMembership struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	Account      string     `gorm:"not null;index:idx_membership_account_group" json:"account"`
	GroupID      uint       `gorm:"not null;index:idx_membership_account_group" json:"group_id"`
	AssignedBy   string     `gorm:"not null" json:"assigned_by"`
	AssignedDate time.Time  `gorm:"not null" json:"assigned_date"`
	IsActive     bool       `gorm:"not null;index" json:"is_active"`
	RemovedBy    string     `json:"removed_by,omitempty"`
	RemovedDate  *time.Time `json:"removed_date,omitempty"`

	// Relationships
	Group Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
