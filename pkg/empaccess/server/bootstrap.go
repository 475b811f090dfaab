package server

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// DefaultAdminGroup is the group bootstrap-admin places the first operator in.
const DefaultAdminGroup = "Administrators"

// BootstrapAdminInput describes the first operator account.
type BootstrapAdminInput struct {
	Account    identity.Account
	Password   string
	GroupName  string
	SecurityID int
	Actor      string
}

// BootstrapAdmin makes Account an administrator: it ensures the admin
// security definition and group exist, links them, adds the membership and
// sets a local password. Running it again converges on the same state.
func BootstrapAdmin(ctx context.Context, db *gorm.DB, engine *access.Engine, in BootstrapAdminInput) error {
	if in.SecurityID <= 0 {
		return fmt.Errorf("admin security id must be positive: %w", access.ErrInvalidInput)
	}
	if in.Password == "" {
		return fmt.Errorf("password is required: %w", access.ErrInvalidInput)
	}
	if in.GroupName == "" {
		in.GroupName = DefaultAdminGroup
	}
	if in.Actor == "" {
		in.Actor = "bootstrap"
	}

	var group models.Group
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var def models.SecurityDefinition
		err := tx.Where("security_id = ?", in.SecurityID).First(&def).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			def = models.SecurityDefinition{
				SecurityID:   in.SecurityID,
				Name:         "Administration",
				Description:  "Manage systems, groups and grants",
				ResourceType: models.ResourceController,
				IsActive:     true,
				CreatedBy:    in.Actor,
			}
			if err := tx.Create(&def).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case !def.IsActive:
			if err := tx.Model(&def).Update("is_active", true).Error; err != nil {
				return err
			}
		}

		err = tx.Where("name = ?", in.GroupName).First(&group).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			group = models.Group{Name: in.GroupName, Description: "Service administrators", IsActive: true, CreatedBy: in.Actor}
			return tx.Create(&group).Error
		case err != nil:
			return err
		case !group.IsActive:
			return tx.Model(&group).Update("is_active", true).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prepare admin group: %w", err)
	}

	if _, err := engine.Assignments().AssignToGroup(ctx, group.ID, in.SecurityID, in.Actor); err != nil && !errors.Is(err, access.ErrConflict) {
		return fmt.Errorf("assign admin security id: %w", err)
	}
	if _, err := engine.Memberships().AddMember(ctx, in.Account, group.ID, in.Actor); err != nil && !errors.Is(err, access.ErrConflict) {
		return fmt.Errorf("add admin membership: %w", err)
	}
	if err := auth.SetPassword(ctx, db, in.Account, in.Password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}
