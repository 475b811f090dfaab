package access

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/metrics"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// InvalidSecurityID is the per-id error reported for non-positive ids.
const InvalidSecurityID = "invalid security id"

// PermissionCheckResult answers whether an account holds one security id.
type PermissionCheckResult struct {
	SecurityID        int              `json:"security_id"`
	HasAccess         bool             `json:"has_access"`
	AssignmentSource  AssignmentSource `json:"assignment_source"`
	SystemCode        string           `json:"system_code,omitempty"`
	SystemName        string           `json:"system_name,omitempty"`
	DisplaySecurityID string           `json:"display_security_id,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// EmployeePermission is a held catalog entry decorated with its source.
type EmployeePermission struct {
	SecurityID        int              `json:"security_id"`
	DisplaySecurityID string           `json:"display_security_id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	ResourceType      string           `json:"resource_type"`
	ResourcePath      string           `json:"resource_path,omitempty"`
	Category          string           `json:"category,omitempty"`
	SortOrder         int              `json:"sort_order"`
	SystemCode        string           `json:"system_code,omitempty"`
	SystemName        string           `json:"system_name,omitempty"`
	AssignmentSource  AssignmentSource `json:"assignment_source"`
	AssignedDate      time.Time        `json:"assigned_date"`
	ExpiryDate        *time.Time       `json:"expiry_date,omitempty"`
}

// EmployeeSecurityID is the flattened form of a held grant.
type EmployeeSecurityID struct {
	SecurityID        int              `json:"security_id"`
	DisplaySecurityID string           `json:"display_security_id"`
	Name              string           `json:"name"`
	ResourceType      string           `json:"resource_type"`
	SystemCode        string           `json:"system_code,omitempty"`
	SystemName        string           `json:"system_name,omitempty"`
	AssignmentSource  AssignmentSource `json:"assignment_source"`
}

// SystemPermissionSet groups held permissions under their owning system.
// Global permissions are grouped under an empty system code.
type SystemPermissionSet struct {
	SystemCode  string               `json:"system_code"`
	SystemName  string               `json:"system_name"`
	Permissions []EmployeePermission `json:"permissions"`
}

// Profile is everything a client needs to render an account's access.
type Profile struct {
	Account             string                `json:"account"`
	Employee            *models.Employee      `json:"employee,omitempty"`
	Groups              []string              `json:"groups"`
	IsManager           bool                  `json:"is_manager"`
	Provisioned         bool                  `json:"provisioned"`
	Systems             []SystemAccess        `json:"systems"`
	SecurityIDs         []int                 `json:"security_ids"`
	PermissionsBySystem []SystemPermissionSet `json:"permissions_by_system"`
}

// Engine is the public query surface over grants, catalog and visibility.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	db         *gorm.DB
	logger     *zap.Logger
	now        func() time.Time
	grants     *GrantResolver
	catalog    *Catalog
	members    *MembershipStore
	assigns    *AssignmentStore
	visibility *VisibilityFilter
}

// NewEngine wires the access components over db.
func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	o := buildOptions(opts)
	visibility := NewVisibilityFilter(db, opts...)
	return &Engine{
		db:         db,
		logger:     o.logger,
		now:        o.now,
		grants:     visibility.grants,
		catalog:    NewCatalog(db, opts...),
		members:    NewMembershipStore(db, opts...),
		assigns:    NewAssignmentStore(db, opts...),
		visibility: visibility,
	}
}

// Catalog returns the engine's security catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Memberships returns the engine's group membership store.
func (e *Engine) Memberships() *MembershipStore { return e.members }

// Assignments returns the engine's group and direct assignment store.
func (e *Engine) Assignments() *AssignmentStore { return e.assigns }

// EffectiveGrants returns the set of security ids the account holds.
func (e *Engine) EffectiveGrants(ctx context.Context, account identity.Account) (map[int]struct{}, error) {
	return e.grants.EffectiveGrants(ctx, account)
}

// GrantDetail returns the account's grants with their sources in catalog order.
func (e *Engine) GrantDetail(ctx context.Context, account identity.Account) ([]Grant, error) {
	return e.grants.GrantDetail(ctx, account)
}

// VisibleSystems returns the systems the account may see.
func (e *Engine) VisibleSystems(ctx context.Context, account identity.Account) ([]SystemAccess, error) {
	return e.visibility.VisibleSystems(ctx, account)
}

// IsManager reports whether the account is classified as manager level.
func (e *Engine) IsManager(ctx context.Context, account identity.Account) (bool, error) {
	return e.visibility.IsManager(ctx, account)
}

// CheckAccess reports whether the account holds securityID. Unknown ids and
// unheld ids are denied with SourceNone; only store failures return an error.
// Visibility gating does not apply here.
func (e *Engine) CheckAccess(ctx context.Context, account identity.Account, securityID int) (PermissionCheckResult, error) {
	results, err := e.BatchCheckAccess(ctx, account, []int{securityID})
	if err != nil {
		return PermissionCheckResult{}, err
	}
	return results[securityID], nil
}

// BatchCheckAccess checks every id against one resolution of the account's
// grants. Duplicate ids collapse to one entry. A non-positive id is denied
// with an error message and does not abort the rest of the batch.
func (e *Engine) BatchCheckAccess(ctx context.Context, account identity.Account, securityIDs []int) (map[int]PermissionCheckResult, error) {
	results := make(map[int]PermissionCheckResult, len(securityIDs))
	wanted := make([]int, 0, len(securityIDs))
	for _, id := range securityIDs {
		if _, seen := results[id]; seen {
			continue
		}
		if id <= 0 {
			results[id] = PermissionCheckResult{SecurityID: id, AssignmentSource: SourceNone, Error: InvalidSecurityID}
			continue
		}
		results[id] = PermissionCheckResult{SecurityID: id, AssignmentSource: SourceNone}
		wanted = append(wanted, id)
	}
	if len(wanted) == 0 {
		return results, nil
	}

	var (
		grants map[int]*Grant
		defs   map[int]models.SecurityDefinition
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if grants, err = resolveGrants(tx, account, e.now(), e.logger); err != nil {
			return err
		}
		var unheld []int
		for _, id := range wanted {
			if _, ok := grants[id]; !ok {
				unheld = append(unheld, id)
			}
		}
		defs, err = lookupDefinitions(tx, unheld)
		return err
	})
	if err != nil {
		e.logger.Error("Permission check failed",
			zap.String("account", account.String()),
			zap.Ints("security_ids", wanted),
			zap.Error(err))
		return nil, storeErr("check_access", err)
	}

	for _, id := range wanted {
		r := results[id]
		if g, ok := grants[id]; ok {
			r.HasAccess = true
			r.AssignmentSource = g.Source
			describe(&r, g.Definition)
		} else if def, ok := defs[id]; ok {
			describe(&r, def)
		}
		results[id] = r
		metrics.ObservePermissionCheck(r.AssignmentSource.String())
	}
	return results, nil
}

func describe(r *PermissionCheckResult, def models.SecurityDefinition) {
	r.SystemCode = def.SystemCode()
	r.SystemName = def.SystemName()
	r.DisplaySecurityID = def.DisplaySecurityID()
}

// PermissionsForSystem returns the held entries of one system ordered by
// sort order then name. An unknown system yields an empty list.
func (e *Engine) PermissionsForSystem(ctx context.Context, account identity.Account, systemCode string) ([]EmployeePermission, error) {
	code := strings.TrimSpace(systemCode)
	if code == "" {
		return []EmployeePermission{}, nil
	}
	grants, err := e.grants.GrantDetail(ctx, account)
	if err != nil {
		return nil, err
	}

	var held []Grant
	for _, g := range grants {
		if strings.EqualFold(g.Definition.SystemCode(), code) {
			held = append(held, g)
		}
	}
	sortByPosition(held)

	out := make([]EmployeePermission, 0, len(held))
	for _, g := range held {
		out = append(out, toEmployeePermission(g))
	}
	return out, nil
}

// AllSecurityIDsFor flattens every held grant across all systems, in catalog order.
func (e *Engine) AllSecurityIDsFor(ctx context.Context, account identity.Account) ([]EmployeeSecurityID, error) {
	grants, err := e.grants.GrantDetail(ctx, account)
	if err != nil {
		return nil, err
	}

	out := make([]EmployeeSecurityID, 0, len(grants))
	for _, g := range grants {
		out = append(out, EmployeeSecurityID{
			SecurityID:        g.SecurityID,
			DisplaySecurityID: g.Definition.DisplaySecurityID(),
			Name:              g.Definition.Name,
			ResourceType:      g.Definition.ResourceType,
			SystemCode:        g.Definition.SystemCode(),
			SystemName:        g.Definition.SystemName(),
			AssignmentSource:  g.Source,
		})
	}
	return out, nil
}

// PermissionsBySystem groups held permissions under each visible system,
// followed by the global permissions. Grants inside systems hidden by the
// manager gate are left out.
func (e *Engine) PermissionsBySystem(ctx context.Context, account identity.Account) ([]SystemPermissionSet, error) {
	grants, err := e.grants.resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	manager, err := e.visibility.IsManager(ctx, account)
	if err != nil {
		return nil, err
	}
	systems, err := e.visibility.visibleFrom(ctx, grants, manager)
	if err != nil {
		return nil, err
	}
	return groupBySystem(sortedGrants(grants), systems), nil
}

func groupBySystem(grants []Grant, systems []SystemAccess) []SystemPermissionSet {
	visible := visibleSystemIDs(systems)
	bySystem := make(map[uint][]Grant, len(systems))
	var global []Grant
	for _, g := range grants {
		if g.Definition.SystemID == nil {
			global = append(global, g)
			continue
		}
		if _, ok := visible[*g.Definition.SystemID]; ok {
			bySystem[*g.Definition.SystemID] = append(bySystem[*g.Definition.SystemID], g)
		}
	}

	out := make([]SystemPermissionSet, 0, len(systems)+1)
	for _, s := range systems {
		out = append(out, permissionSet(s.Code, s.Name, bySystem[s.ID]))
	}
	if len(global) > 0 {
		out = append(out, permissionSet("", "", global))
	}
	return out
}

func permissionSet(code, name string, grants []Grant) SystemPermissionSet {
	sortByPosition(grants)
	set := SystemPermissionSet{SystemCode: code, SystemName: name, Permissions: make([]EmployeePermission, 0, len(grants))}
	for _, g := range grants {
		set.Permissions = append(set.Permissions, toEmployeePermission(g))
	}
	return set
}

func toEmployeePermission(g Grant) EmployeePermission {
	d := g.Definition
	return EmployeePermission{
		SecurityID:        g.SecurityID,
		DisplaySecurityID: d.DisplaySecurityID(),
		Name:              d.Name,
		Description:       d.Description,
		ResourceType:      d.ResourceType,
		ResourcePath:      d.ResourcePath,
		Category:          d.Category,
		SortOrder:         d.SortOrder,
		SystemCode:        d.SystemCode(),
		SystemName:        d.SystemName(),
		AssignmentSource:  g.Source,
		AssignedDate:      g.AssignedDate,
		ExpiryDate:        g.ExpiryDate,
	}
}

// IsProvisioned reports whether the account has any active membership or
// effective direct grant. Unprovisioned accounts are a normal state.
func (e *Engine) IsProvisioned(ctx context.Context, account identity.Account) (bool, error) {
	provisioned := false
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups, err := activeGroupIDs(tx, account)
		if err != nil {
			return err
		}
		if len(groups) > 0 {
			provisioned = true
			return nil
		}

		var direct []models.EmployeeSecurityAssignment
		if err := tx.Where("account = ? AND is_active = ?", account.String(), true).Find(&direct).Error; err != nil {
			return err
		}
		now := e.now()
		for _, d := range direct {
			if d.EffectiveAt(now) {
				provisioned = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return false, storeErr("is_provisioned", err)
	}
	return provisioned, nil
}

// Profile assembles the account's directory record, groups, manager flag,
// visible systems and grouped permissions.
func (e *Engine) Profile(ctx context.Context, account identity.Account) (*Profile, error) {
	profile := &Profile{
		Account:             account.String(),
		Groups:              []string{},
		Systems:             []SystemAccess{},
		SecurityIDs:         []int{},
		PermissionsBySystem: []SystemPermissionSet{},
	}

	var employee models.Employee
	err := e.db.WithContext(ctx).Where("account = ?", account.String()).First(&employee).Error
	switch {
	case err == nil:
		profile.Employee = &employee
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, storeErr("profile_employee", err)
	}

	memberships, err := e.members.ActiveMemberships(ctx, account)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		profile.Groups = append(profile.Groups, m.Group.Name)
	}

	grants, err := e.grants.resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	if profile.IsManager, err = e.visibility.IsManager(ctx, account); err != nil {
		return nil, err
	}
	if profile.Systems, err = e.visibility.visibleFrom(ctx, grants, profile.IsManager); err != nil {
		return nil, err
	}

	detail := sortedGrants(grants)
	for _, g := range detail {
		profile.SecurityIDs = append(profile.SecurityIDs, g.SecurityID)
	}
	sort.Ints(profile.SecurityIDs)
	profile.PermissionsBySystem = groupBySystem(detail, profile.Systems)

	if profile.Provisioned, err = e.IsProvisioned(ctx, account); err != nil {
		return nil, err
	}
	return profile, nil
}
