package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// DefaultProvisioner is recorded as AssignedBy for automatic default-group memberships.
const DefaultProvisioner = "system"

// MembershipStore maps accounts to group memberships.
// Membership is flat: a group never inherits another group's grants.
type MembershipStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewMembershipStore creates a membership store over db.
func NewMembershipStore(db *gorm.DB, opts ...Option) *MembershipStore {
	o := buildOptions(opts)
	return &MembershipStore{db: db, logger: o.logger, now: o.now}
}

// ActiveGroupsFor returns the ids of active groups the account is an active member of.
func (s *MembershipStore) ActiveGroupsFor(ctx context.Context, account identity.Account) ([]uint, error) {
	ids, err := activeGroupIDs(s.db.WithContext(ctx), account)
	if err != nil {
		return nil, storeErr("active_groups", err)
	}
	return ids, nil
}

func activeGroupIDs(tx *gorm.DB, account identity.Account) ([]uint, error) {
	var ids []uint
	err := tx.Model(&models.GroupMembership{}).
		Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.account = ? AND group_memberships.is_active = ? AND groups.is_active = ?",
			account.String(), true, true).
		Distinct().
		Order("group_memberships.group_id").
		Pluck("group_memberships.group_id", &ids).Error
	return ids, err
}

// ActiveMemberships returns the account's active memberships in active groups,
// with the group loaded, ordered by group name.
func (s *MembershipStore) ActiveMemberships(ctx context.Context, account identity.Account) ([]models.GroupMembership, error) {
	var rows []models.GroupMembership
	err := s.db.WithContext(ctx).
		Preload("Group").
		Where("account = ? AND is_active = ?", account.String(), true).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("active_memberships", err)
	}

	memberships := rows[:0]
	for _, m := range rows {
		if m.Group.ID != 0 && m.Group.IsActive {
			memberships = append(memberships, m)
		}
	}
	sort.SliceStable(memberships, func(i, j int) bool {
		return memberships[i].Group.Name < memberships[j].Group.Name
	})
	return memberships, nil
}

// Members returns the active memberships of a group ordered by account.
func (s *MembershipStore) Members(ctx context.Context, groupID uint) ([]models.GroupMembership, error) {
	var rows []models.GroupMembership
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Order("account").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("group_members", err)
	}
	return rows, nil
}

// AddMember creates an active membership. The group must exist and be active;
// an existing active membership yields ErrConflict.
func (s *MembershipStore) AddMember(ctx context.Context, account identity.Account, groupID uint, assignedBy string) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("id = ? AND is_active = ?", groupID, true).First(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("group %d: %w", groupID, ErrNotFound)
			}
			return err
		}

		var existing int64
		if err := tx.Model(&models.GroupMembership{}).
			Where("account = ? AND group_id = ? AND is_active = ?", account.String(), groupID, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%s is already a member of group %d: %w", account, groupID, ErrConflict)
		}

		membership = models.GroupMembership{
			Account:      account.String(),
			GroupID:      groupID,
			AssignedBy:   assignedBy,
			AssignedDate: s.now(),
			IsActive:     true,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, storeErr("add_member", err)
	}

	s.logger.Info("Group membership added",
		zap.String("account", account.String()),
		zap.Uint("group_id", groupID),
		zap.String("assigned_by", assignedBy))
	return &membership, nil
}

// RemoveMember deactivates the account's active membership in a single
// UPDATE so concurrent readers never observe a partial state.
func (s *MembershipStore) RemoveMember(ctx context.Context, account identity.Account, groupID uint, removedBy string) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.GroupMembership{}).
		Where("account = ? AND group_id = ? AND is_active = ?", account.String(), groupID, true).
		Updates(map[string]interface{}{
			"is_active":    false,
			"removed_by":   removedBy,
			"removed_date": now,
		})
	if res.Error != nil {
		return storeErr("remove_member", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s in group %d: %w", account, groupID, ErrNotFound)
	}

	s.logger.Info("Group membership removed",
		zap.String("account", account.String()),
		zap.Uint("group_id", groupID),
		zap.String("removed_by", removedBy))
	return nil
}

// EnsureDefaultGroup adds the account to the named group when it has no
// active membership at all. It reports whether a membership was created.
func (s *MembershipStore) EnsureDefaultGroup(ctx context.Context, account identity.Account, groupName string) (bool, error) {
	groupName = strings.TrimSpace(groupName)
	if groupName == "" {
		return false, nil
	}

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.GroupMembership{}).
			Where("account = ? AND is_active = ?", account.String(), true).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return nil
		}

		var group models.Group
		if err := tx.Where("name = ? AND is_active = ?", groupName, true).First(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("default group %q: %w", groupName, ErrNotFound)
			}
			return err
		}

		membership := models.GroupMembership{
			Account:      account.String(),
			GroupID:      group.ID,
			AssignedBy:   DefaultProvisioner,
			AssignedDate: s.now(),
			IsActive:     true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, storeErr("ensure_default_group", err)
	}

	if created {
		s.logger.Info("Account added to default group",
			zap.String("account", account.String()),
			zap.String("group", groupName))
	}
	return created, nil
}
