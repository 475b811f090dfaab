package models

import "time"

// System is a registered sub-application whose screens, buttons and
// controllers are guarded by security definitions.
type System struct {
	ID              uint       `gorm:"primarykey" json:"id"`
	Code            string     `gorm:"uniqueIndex;not null" json:"system_code"`
	Name            string     `gorm:"not null" json:"name"`
	Description     string     `json:"description,omitempty"`
	IconBase64      string     `json:"icon_base64,omitempty"`
	BaseURL         string     `json:"base_url,omitempty"`
	IsInternal      bool       `gorm:"not null" json:"is_internal"`
	RequiresManager bool       `gorm:"not null" json:"requires_manager"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt       time.Time  `json:"created_date"`
	CreatedBy       string     `json:"created_by,omitempty"`
	ModifiedAt      *time.Time `json:"modified_date,omitempty"`
	ModifiedBy      string     `json:"modified_by,omitempty"`

	// Relationships
	Definitions []SecurityDefinition `gorm:"foreignKey:SystemID" json:"definitions,omitempty"`
}
