package models

import "time"

// GroupSecurityAssignment grants a security id to every active member of a group.
type GroupSecurityAssignment struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	GroupID      uint      `gorm:"not null;index:idx_group_security" json:"group_id"`
	SecurityID   int       `gorm:"not null;index:idx_group_security" json:"security_id"`
	IsActive     bool      `gorm:"not null;index" json:"is_active"`
	AssignedBy   string    `json:"assigned_by,omitempty"`
	AssignedDate time.Time `json:"assigned_date"`
}

// EmployeeSecurityAssignment is a direct grant to one account that bypasses groups.
// It is effective only while IsActive is set and ExpiryDate is nil or strictly in the future.
type EmployeeSecurityAssignment struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	Account      string     `gorm:"not null;index" json:"account"`
	SecurityID   int        `gorm:"not null;index" json:"security_id"`
	IsActive     bool       `gorm:"not null;index" json:"is_active"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	AssignedBy   string     `json:"assigned_by,omitempty"`
	AssignedDate time.Time  `json:"assigned_date"`
	RevokedBy    string     `json:"revoked_by,omitempty"`
	RevokedDate  *time.Time `json:"revoked_date,omitempty"`
}

// EffectiveAt reports whether the grant is active and unexpired at t.
// Expiry is exclusive: a grant expiring exactly at t is no longer effective.
func (a EmployeeSecurityAssignment) EffectiveAt(t time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiryDate == nil || a.ExpiryDate.After(t)
}
