package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// SystemInput carries the administrator-editable fields of a system.
type SystemInput struct {
	Code            string `json:"system_code"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	IconBase64      string `json:"icon_base64"`
	BaseURL         string `json:"base_url"`
	IsInternal      bool   `json:"is_internal"`
	RequiresManager bool   `json:"requires_manager"`
}

// DefinitionInput carries the fields of a new security definition.
type DefinitionInput struct {
	SecurityID   int    `json:"security_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ResourceType string `json:"resource_type"`
	ResourcePath string `json:"resource_path"`
	Category     string `json:"category"`
	SortOrder    int    `json:"sort_order"`
}

// CreateSystem registers a new active system. Codes are unique across active
// and deactivated systems.
func (c *Catalog) CreateSystem(ctx context.Context, in SystemInput, actor string) (*models.System, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return nil, fmt.Errorf("system code and name are required: %w", ErrInvalidInput)
	}

	system := models.System{
		Code:            in.Code,
		Name:            in.Name,
		Description:     in.Description,
		IconBase64:      in.IconBase64,
		BaseURL:         in.BaseURL,
		IsInternal:      in.IsInternal,
		RequiresManager: in.RequiresManager,
		IsActive:        true,
		CreatedAt:       c.now(),
		CreatedBy:       actor,
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.System{}).Where("LOWER(code) = ?", strings.ToLower(in.Code)).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("system %q already exists: %w", in.Code, ErrConflict)
		}
		return tx.Create(&system).Error
	})
	if err != nil {
		return nil, storeErr("create_system", err)
	}

	c.logger.Info("System created", zap.String("code", system.Code), zap.String("actor", actor))
	return &system, nil
}

// UpdateSystem rewrites the editable fields of an active system. The code itself is immutable.
func (c *Catalog) UpdateSystem(ctx context.Context, code string, in SystemInput, actor string) (*models.System, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("system name is required: %w", ErrInvalidInput)
	}

	var system models.System
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("LOWER(code) = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(code)), true).
			First(&system).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("system %q: %w", code, ErrNotFound)
			}
			return err
		}

		now := c.now()
		if err := tx.Model(&system).Updates(map[string]interface{}{
			"name":             strings.TrimSpace(in.Name),
			"description":      in.Description,
			"icon_base64":      in.IconBase64,
			"base_url":         in.BaseURL,
			"is_internal":      in.IsInternal,
			"requires_manager": in.RequiresManager,
			"modified_by":      actor,
			"modified_at":      now,
		}).Error; err != nil {
			return err
		}
		return tx.First(&system, system.ID).Error
	})
	if err != nil {
		return nil, storeErr("update_system", err)
	}

	c.logger.Info("System updated", zap.String("code", system.Code), zap.String("actor", actor))
	return &system, nil
}

// DeactivateSystem soft-deletes an active system.
func (c *Catalog) DeactivateSystem(ctx context.Context, code, actor string) error {
	res := c.db.WithContext(ctx).Model(&models.System{}).
		Where("LOWER(code) = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(code)), true).
		Updates(map[string]interface{}{
			"is_active":   false,
			"modified_by": actor,
			"modified_at": c.now(),
		})
	if res.Error != nil {
		return storeErr("deactivate_system", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("system %q: %w", code, ErrNotFound)
	}

	c.logger.Info("System deactivated", zap.String("code", code), zap.String("actor", actor))
	return nil
}

// CreateDefinition adds a security definition to an active system, or a
// system-less definition when systemCode is empty.
func (c *Catalog) CreateDefinition(ctx context.Context, systemCode string, in DefinitionInput, actor string) (*models.SecurityDefinition, error) {
	if in.SecurityID <= 0 {
		return nil, fmt.Errorf("security id must be positive: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("definition name is required: %w", ErrInvalidInput)
	}
	resourceType := models.NormalizeResourceType(in.ResourceType)
	switch resourceType {
	case models.ResourceScreen, models.ResourceButton, models.ResourceController:
	default:
		return nil, fmt.Errorf("unknown resource type %q: %w", in.ResourceType, ErrInvalidInput)
	}

	def := models.SecurityDefinition{
		SecurityID:   in.SecurityID,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		ResourceType: resourceType,
		ResourcePath: in.ResourcePath,
		Category:     in.Category,
		SortOrder:    in.SortOrder,
		IsActive:     true,
		CreatedAt:    c.now(),
		CreatedBy:    actor,
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if code := strings.TrimSpace(systemCode); code != "" {
			var system models.System
			if err := tx.Where("LOWER(code) = ? AND is_active = ?", strings.ToLower(code), true).First(&system).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("system %q: %w", code, ErrNotFound)
				}
				return err
			}
			def.SystemID = &system.ID
		}

		var existing int64
		if err := tx.Model(&models.SecurityDefinition{}).Where("security_id = ?", in.SecurityID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("security id %d already exists: %w", in.SecurityID, ErrConflict)
		}
		return tx.Create(&def).Error
	})
	if err != nil {
		return nil, storeErr("create_definition", err)
	}

	c.logger.Info("Security definition created",
		zap.Int("security_id", def.SecurityID),
		zap.String("system", systemCode),
		zap.String("actor", actor))
	return &def, nil
}

// DeactivateDefinition soft-deletes a definition. Grant rows referencing it
// stay in place and are filtered out at resolution time.
func (c *Catalog) DeactivateDefinition(ctx context.Context, securityID int, actor string) error {
	res := c.db.WithContext(ctx).Model(&models.SecurityDefinition{}).
		Where("security_id = ? AND is_active = ?", securityID, true).
		Updates(map[string]interface{}{
			"is_active":   false,
			"modified_by": actor,
			"modified_at": c.now(),
		})
	if res.Error != nil {
		return storeErr("deactivate_definition", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("security id %d: %w", securityID, ErrNotFound)
	}

	c.logger.Info("Security definition deactivated", zap.Int("security_id", securityID), zap.String("actor", actor))
	return nil
}
