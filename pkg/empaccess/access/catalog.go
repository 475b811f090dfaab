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

	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Catalog is the read and administration surface over systems and security definitions.
type Catalog struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewCatalog creates a catalog over db.
func NewCatalog(db *gorm.DB, opts ...Option) *Catalog {
	o := buildOptions(opts)
	return &Catalog{db: db, logger: o.logger, now: o.now}
}

// CatalogStats summarises the catalog and its assignments.
type CatalogStats struct {
	TotalSystems             int64 `json:"total_systems"`
	ActiveSystems            int64 `json:"active_systems"`
	InternalSystems          int64 `json:"internal_systems"`
	ExternalSystems          int64 `json:"external_systems"`
	TotalSecurityDefinitions int64 `json:"total_security_definitions"`
	TotalUsers               int64 `json:"total_users"`
	TotalGroups              int64 `json:"total_groups"`
}

// SystemGroup is a group holding at least one active grant inside a system.
type SystemGroup struct {
	GroupID          uint   `json:"group_id"`
	GroupName        string `json:"group_name"`
	GroupDescription string `json:"group_description"`
	PermissionCount  int    `json:"permission_count"`
	MemberCount      int    `json:"member_count"`
}

// SystemUser is an account holding group-derived grants inside a system.
type SystemUser struct {
	Account         string   `json:"account"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Department      string   `json:"department"`
	PermissionCount int      `json:"permission_count"`
	GroupNames      []string `json:"group_names"`
}

// DefinitionsFor returns the usable definitions of one system, or of every
// system plus the system-less definitions when systemCode is empty.
// Results are in catalog order: system name, category, sort order, name.
func (c *Catalog) DefinitionsFor(ctx context.Context, systemCode string) ([]models.SecurityDefinition, error) {
	q := c.db.WithContext(ctx).Preload("System").Where("is_active = ?", true)
	if code := strings.TrimSpace(systemCode); code != "" {
		q = q.Where("system_id IN (?)",
			c.db.Model(&models.System{}).Select("id").Where("LOWER(code) = ? AND is_active = ?", strings.ToLower(code), true))
	}

	var rows []models.SecurityDefinition
	if err := q.Find(&rows).Error; err != nil {
		return nil, storeErr("definitions_for", err)
	}

	defs := rows[:0]
	for _, d := range rows {
		if d.Usable() {
			defs = append(defs, d)
		}
	}
	sortCatalog(defs)
	return defs, nil
}

// Lookup returns the usable definitions among ids, keyed by security id.
// Unknown or deactivated ids are simply absent.
func (c *Catalog) Lookup(ctx context.Context, ids []int) (map[int]models.SecurityDefinition, error) {
	defs, err := lookupDefinitions(c.db.WithContext(ctx), ids)
	if err != nil {
		return nil, storeErr("lookup_definitions", err)
	}
	return defs, nil
}

func lookupDefinitions(tx *gorm.DB, ids []int) (map[int]models.SecurityDefinition, error) {
	out := make(map[int]models.SecurityDefinition, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []models.SecurityDefinition
	if err := tx.Preload("System").Where("security_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, d := range rows {
		if d.Usable() {
			out[d.SecurityID] = d
		}
	}
	return out, nil
}

// sortCatalog applies the catalog's display order. Security id breaks ties
// so the order is total.
func sortCatalog(defs []models.SecurityDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		if a.SystemName() != b.SystemName() {
			return a.SystemName() < b.SystemName()
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.SecurityID < b.SecurityID
	})
}

// Systems returns the active systems ordered by code.
func (c *Catalog) Systems(ctx context.Context) ([]models.System, error) {
	var systems []models.System
	if err := c.db.WithContext(ctx).Where("is_active = ?", true).Order("code").Find(&systems).Error; err != nil {
		return nil, storeErr("systems", err)
	}
	return systems, nil
}

// SystemByCode returns an active system by its code (case-insensitive).
func (c *Catalog) SystemByCode(ctx context.Context, code string) (*models.System, error) {
	var system models.System
	err := c.db.WithContext(ctx).
		Where("LOWER(code) = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(code)), true).
		First(&system).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("system %q: %w", code, ErrNotFound)
		}
		return nil, storeErr("system_by_code", err)
	}
	return &system, nil
}

// SearchSystems matches active systems whose code, name or description
// contains q. Results rank exact code, exact name, code prefix, name prefix,
// then everything else, with code as the final key.
func (c *Catalog) SearchSystems(ctx context.Context, q string) ([]models.System, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, fmt.Errorf("empty search query: %w", ErrInvalidInput)
	}

	pattern := "%" + escapeLike(q) + "%"
	var systems []models.System
	err := c.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("LOWER(code) LIKE ? ESCAPE '\\' OR LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\'",
			pattern, pattern, pattern).
		Find(&systems).Error
	if err != nil {
		return nil, storeErr("search_systems", err)
	}

	rank := func(s models.System) int {
		code, name := strings.ToLower(s.Code), strings.ToLower(s.Name)
		switch {
		case code == q:
			return 1
		case name == q:
			return 2
		case strings.HasPrefix(code, q):
			return 3
		case strings.HasPrefix(name, q):
			return 4
		}
		return 5
	}
	sort.SliceStable(systems, func(i, j int) bool {
		ri, rj := rank(systems[i]), rank(systems[j])
		if ri != rj {
			return ri < rj
		}
		return systems[i].Code < systems[j].Code
	})
	return systems, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Stats returns catalog-wide counts.
func (c *Catalog) Stats(ctx context.Context) (*CatalogStats, error) {
	var stats CatalogStats
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counts := []struct {
			dst   *int64
			model interface{}
			where string
			args  []interface{}
		}{
			{&stats.TotalSystems, &models.System{}, "", nil},
			{&stats.ActiveSystems, &models.System{}, "is_active = ?", []interface{}{true}},
			{&stats.InternalSystems, &models.System{}, "is_active = ? AND is_internal = ?", []interface{}{true, true}},
			{&stats.ExternalSystems, &models.System{}, "is_active = ? AND is_internal = ?", []interface{}{true, false}},
			{&stats.TotalSecurityDefinitions, &models.SecurityDefinition{}, "is_active = ?", []interface{}{true}},
			{&stats.TotalGroups, &models.Group{}, "is_active = ?", []interface{}{true}},
		}
		for _, cnt := range counts {
			q := tx.Model(cnt.model)
			if cnt.where != "" {
				q = q.Where(cnt.where, cnt.args...)
			}
			if err := q.Count(cnt.dst).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.GroupMembership{}).
			Where("is_active = ?", true).
			Distinct("account").
			Count(&stats.TotalUsers).Error
	})
	if err != nil {
		return nil, storeErr("catalog_stats", err)
	}
	return &stats, nil
}

// systemGroupGrants returns the active group assignments that point at usable
// definitions of the system, keyed by group id.
func systemGroupGrants(tx *gorm.DB, systemID uint) (map[uint]map[int]struct{}, error) {
	var assignments []models.GroupSecurityAssignment
	err := tx.Where("is_active = ? AND security_id IN (?)", true,
		tx.Session(&gorm.Session{NewDB: true}).Model(&models.SecurityDefinition{}).
			Select("security_id").Where("system_id = ? AND is_active = ?", systemID, true)).
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	byGroup := make(map[uint]map[int]struct{})
	for _, a := range assignments {
		if byGroup[a.GroupID] == nil {
			byGroup[a.GroupID] = make(map[int]struct{})
		}
		byGroup[a.GroupID][a.SecurityID] = struct{}{}
	}
	return byGroup, nil
}

// SystemGroups lists the active groups holding active grants inside the
// system, ordered by group name.
func (c *Catalog) SystemGroups(ctx context.Context, code string) ([]SystemGroup, error) {
	system, err := c.SystemByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var out []SystemGroup
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byGroup, err := systemGroupGrants(tx, system.ID)
		if err != nil || len(byGroup) == 0 {
			return err
		}

		groupIDs := make([]uint, 0, len(byGroup))
		for id := range byGroup {
			groupIDs = append(groupIDs, id)
		}
		var groups []models.Group
		if err := tx.Where("id IN ? AND is_active = ?", groupIDs, true).Order("name").Find(&groups).Error; err != nil {
			return err
		}

		for _, g := range groups {
			var members int64
			if err := tx.Model(&models.GroupMembership{}).
				Where("group_id = ? AND is_active = ?", g.ID, true).
				Distinct("account").
				Count(&members).Error; err != nil {
				return err
			}
			out = append(out, SystemGroup{
				GroupID:          g.ID,
				GroupName:        g.Name,
				GroupDescription: g.Description,
				PermissionCount:  len(byGroup[g.ID]),
				MemberCount:      int(members),
			})
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("system_groups", err)
	}
	return out, nil
}

// SystemUsers lists accounts whose active group memberships grant anything
// inside the system, ordered by display name. Accounts without a directory
// record are listed under their account key.
func (c *Catalog) SystemUsers(ctx context.Context, code string) ([]SystemUser, error) {
	system, err := c.SystemByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var out []SystemUser
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byGroup, err := systemGroupGrants(tx, system.ID)
		if err != nil || len(byGroup) == 0 {
			return err
		}

		groupIDs := make([]uint, 0, len(byGroup))
		for id := range byGroup {
			groupIDs = append(groupIDs, id)
		}
		var memberships []models.GroupMembership
		if err := tx.Preload("Group").
			Where("group_id IN ? AND is_active = ?", groupIDs, true).
			Find(&memberships).Error; err != nil {
			return err
		}

		users := make(map[string]*SystemUser)
		held := make(map[string]map[int]struct{})
		for _, m := range memberships {
			if !m.Group.IsActive {
				continue
			}
			u, ok := users[m.Account]
			if !ok {
				u = &SystemUser{Account: m.Account, Name: m.Account}
				users[m.Account] = u
				held[m.Account] = make(map[int]struct{})
			}
			u.GroupNames = append(u.GroupNames, m.Group.Name)
			for id := range byGroup[m.GroupID] {
				held[m.Account][id] = struct{}{}
			}
		}
		if len(users) == 0 {
			return nil
		}

		accounts := make([]string, 0, len(users))
		for account := range users {
			accounts = append(accounts, account)
		}
		var employees []models.Employee
		if err := tx.Where("account IN ?", accounts).Find(&employees).Error; err != nil {
			return err
		}
		for _, e := range employees {
			u := users[e.Account]
			if e.Name != "" {
				u.Name = e.Name
			}
			u.Email = e.Email
			u.Department = e.Department
		}

		for account, u := range users {
			u.PermissionCount = len(held[account])
			sort.Strings(u.GroupNames)
			out = append(out, *u)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return out[i].Account < out[j].Account
		})
		return nil
	})
	if err != nil {
		return nil, storeErr("system_users", err)
	}
	return out, nil
}
