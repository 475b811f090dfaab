package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// AssignmentStore administers group and direct security assignments.
// Revocation always deactivates rows in place.
type AssignmentStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewAssignmentStore creates an assignment store over db.
func NewAssignmentStore(db *gorm.DB, opts ...Option) *AssignmentStore {
	o := buildOptions(opts)
	return &AssignmentStore{db: db, logger: o.logger, now: o.now}
}

// DirectGrantInput describes a new direct grant.
type DirectGrantInput struct {
	SecurityID int        `json:"security_id"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Notes      string     `json:"notes"`
}

// GroupAssignments returns the active assignments of a group ordered by security id.
func (s *AssignmentStore) GroupAssignments(ctx context.Context, groupID uint) ([]models.GroupSecurityAssignment, error) {
	var rows []models.GroupSecurityAssignment
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Order("security_id").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("group_assignments", err)
	}
	return rows, nil
}

// AssignToGroup grants a usable security id to an active group.
func (s *AssignmentStore) AssignToGroup(ctx context.Context, groupID uint, securityID int, actor string) (*models.GroupSecurityAssignment, error) {
	var assignment models.GroupSecurityAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireActiveGroup(tx, groupID); err != nil {
			return err
		}
		if err := requireUsableDefinition(tx, securityID); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.GroupSecurityAssignment{}).
			Where("group_id = ? AND security_id = ? AND is_active = ?", groupID, securityID, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("security id %d already assigned to group %d: %w", securityID, groupID, ErrConflict)
		}

		assignment = models.GroupSecurityAssignment{
			GroupID:      groupID,
			SecurityID:   securityID,
			IsActive:     true,
			AssignedBy:   actor,
			AssignedDate: s.now(),
		}
		return tx.Create(&assignment).Error
	})
	if err != nil {
		return nil, storeErr("assign_to_group", err)
	}

	s.logger.Info("Security id assigned to group",
		zap.Uint("group_id", groupID),
		zap.Int("security_id", securityID),
		zap.String("actor", actor))
	return &assignment, nil
}

// UnassignFromGroup deactivates a group's active assignment of securityID.
func (s *AssignmentStore) UnassignFromGroup(ctx context.Context, groupID uint, securityID int, actor string) error {
	res := s.db.WithContext(ctx).Model(&models.GroupSecurityAssignment{}).
		Where("group_id = ? AND security_id = ? AND is_active = ?", groupID, securityID, true).
		Update("is_active", false)
	if res.Error != nil {
		return storeErr("unassign_from_group", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("security id %d in group %d: %w", securityID, groupID, ErrNotFound)
	}

	s.logger.Info("Security id removed from group",
		zap.Uint("group_id", groupID),
		zap.Int("security_id", securityID),
		zap.String("actor", actor))
	return nil
}

// DirectGrants returns every direct grant row of the account, newest first,
// including revoked and expired rows.
func (s *AssignmentStore) DirectGrants(ctx context.Context, account identity.Account) ([]models.EmployeeSecurityAssignment, error) {
	var rows []models.EmployeeSecurityAssignment
	err := s.db.WithContext(ctx).
		Where("account = ?", account.String()).
		Order("assigned_date DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("direct_grants", err)
	}
	return rows, nil
}

// GrantDirect gives the account a direct grant. An expiry that is not
// strictly in the future is rejected.
func (s *AssignmentStore) GrantDirect(ctx context.Context, account identity.Account, in DirectGrantInput, actor string) (*models.EmployeeSecurityAssignment, error) {
	now := s.now()
	if in.ExpiryDate != nil && !in.ExpiryDate.After(now) {
		return nil, fmt.Errorf("expiry date must be in the future: %w", ErrInvalidInput)
	}

	grant := models.EmployeeSecurityAssignment{
		Account:      account.String(),
		SecurityID:   in.SecurityID,
		IsActive:     true,
		ExpiryDate:   in.ExpiryDate,
		Notes:        in.Notes,
		AssignedBy:   actor,
		AssignedDate: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUsableDefinition(tx, in.SecurityID); err != nil {
			return err
		}
		return tx.Create(&grant).Error
	})
	if err != nil {
		return nil, storeErr("grant_direct", err)
	}

	s.logger.Info("Direct grant added",
		zap.String("account", account.String()),
		zap.Int("security_id", in.SecurityID),
		zap.String("actor", actor))
	return &grant, nil
}

// RevokeDirect deactivates one of the account's active direct grants.
func (s *AssignmentStore) RevokeDirect(ctx context.Context, account identity.Account, grantID uint, actor string) error {
	res := s.db.WithContext(ctx).Model(&models.EmployeeSecurityAssignment{}).
		Where("id = ? AND account = ? AND is_active = ?", grantID, account.String(), true).
		Updates(map[string]interface{}{
			"is_active":    false,
			"revoked_by":   actor,
			"revoked_date": s.now(),
		})
	if res.Error != nil {
		return storeErr("revoke_direct", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("grant %d for %s: %w", grantID, account, ErrNotFound)
	}

	s.logger.Info("Direct grant revoked",
		zap.String("account", account.String()),
		zap.Uint("grant_id", grantID),
		zap.String("actor", actor))
	return nil
}

func requireActiveGroup(tx *gorm.DB, groupID uint) error {
	var n int64
	if err := tx.Model(&models.Group{}).Where("id = ? AND is_active = ?", groupID, true).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	return nil
}

func requireUsableDefinition(tx *gorm.DB, securityID int) error {
	if securityID <= 0 {
		return fmt.Errorf("security id must be positive: %w", ErrInvalidInput)
	}
	var def models.SecurityDefinition
	if err := tx.Preload("System").Where("security_id = ?", securityID).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("security id %d: %w", securityID, ErrNotFound)
		}
		return err
	}
	if !def.Usable() {
		return fmt.Errorf("security id %d is inactive: %w", securityID, ErrNotFound)
	}
	return nil
}
