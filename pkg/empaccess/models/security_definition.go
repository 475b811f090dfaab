package models

import (
	"strconv"
	"strings"
	"time"
)

// Resource types a security definition can guard.
const (
	ResourceScreen     = "Screen"
	ResourceButton     = "Button"
	ResourceController = "Controller"
)

// SecurityDefinition is a single grantable permission.
// SystemID is nil for global definitions that belong to no system.
type SecurityDefinition struct {
	SecurityID   int        `gorm:"primaryKey;autoIncrement:false" json:"security_id"`
	SystemID     *uint      `gorm:"index" json:"system_id,omitempty"`
	Name         string     `gorm:"not null" json:"name"`
	Description  string     `json:"description,omitempty"`
	ResourceType string     `gorm:"not null" json:"resource_type"`
	ResourcePath string     `json:"resource_path,omitempty"`
	Category     string     `json:"category,omitempty"`
	SortOrder    int        `gorm:"not null;default:0" json:"sort_order"`
	IsActive     bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt    time.Time  `json:"created_date"`
	CreatedBy    string     `json:"created_by,omitempty"`
	ModifiedAt   *time.Time `json:"modified_date,omitempty"`
	ModifiedBy   string     `json:"modified_by,omitempty"`

	// Relationships
	System *System `gorm:"foreignKey:SystemID" json:"system,omitempty"`
}

// SystemCode returns the owning system's code, or "" for global definitions.
func (d SecurityDefinition) SystemCode() string {
	if d.System == nil {
		return ""
	}
	return d.System.Code
}

// SystemName returns the owning system's name, or "" for global definitions.
func (d SecurityDefinition) SystemName() string {
	if d.System == nil {
		return ""
	}
	return d.System.Name
}

// DisplaySecurityID renders the id as "{systemCode}.{securityId}".
// It is derived on every call so a renamed system code never leaves stale values behind.
func (d SecurityDefinition) DisplaySecurityID() string {
	id := strconv.Itoa(d.SecurityID)
	if code := d.SystemCode(); code != "" {
		return code + "." + id
	}
	return id
}

// Usable reports whether the definition and its owning system (if any) are active.
// The System association must be loaded; a SystemID without a loaded System is
// a dangling reference and is not usable.
func (d SecurityDefinition) Usable() bool {
	if !d.IsActive {
		return false
	}
	if d.SystemID == nil {
		return true
	}
	return d.System != nil && d.System.IsActive
}

// NormalizeResourceType maps free-form resource types onto the canonical names.
// Unknown types are returned trimmed and unchanged.
func NormalizeResourceType(t string) string {
	t = strings.TrimSpace(t)
	switch strings.ToLower(t) {
	case "screen":
		return ResourceScreen
	case "button":
		return ResourceButton
	case "controller":
		return ResourceController
	}
	return t
}
