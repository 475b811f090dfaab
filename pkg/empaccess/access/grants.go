package access

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Grant is one security id held by an account, with its provenance.
type Grant struct {
	SecurityID   int                       `json:"security_id"`
	Source       AssignmentSource          `json:"assignment_source"`
	Definition   models.SecurityDefinition `json:"definition"`
	AssignedDate time.Time                 `json:"assigned_date"`
	ExpiryDate   *time.Time                `json:"expiry_date,omitempty"`
	Notes        string                    `json:"notes,omitempty"`
}

// GrantResolver computes the effective grants of an account: the union of
// the grants of its active groups and its active, unexpired direct grants,
// restricted to usable catalog entries.
type GrantResolver struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGrantResolver creates a resolver over db.
func NewGrantResolver(db *gorm.DB, opts ...Option) *GrantResolver {
	o := buildOptions(opts)
	return &GrantResolver{db: db, logger: o.logger, now: o.now}
}

// EffectiveGrants returns the set of security ids the account holds.
// An unknown account yields an empty set.
func (r *GrantResolver) EffectiveGrants(ctx context.Context, account identity.Account) (map[int]struct{}, error) {
	grants, err := r.resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	set := make(map[int]struct{}, len(grants))
	for id := range grants {
		set[id] = struct{}{}
	}
	return set, nil
}

// GrantDetail returns every held grant in catalog order. A security id held
// both directly and through a group is reported once with SourceDirect.
func (r *GrantResolver) GrantDetail(ctx context.Context, account identity.Account) ([]Grant, error) {
	grants, err := r.resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	return sortedGrants(grants), nil
}

func (r *GrantResolver) resolve(ctx context.Context, account identity.Account) (map[int]*Grant, error) {
	var grants map[int]*Grant
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		grants, err = resolveGrants(tx, account, r.now(), r.logger)
		return err
	})
	if err != nil {
		return nil, storeErr("resolve_grants", err)
	}
	return grants, nil
}

// resolveGrants runs the resolution inside tx so that group and direct
// grants are read from one consistent view.
func resolveGrants(tx *gorm.DB, account identity.Account, now time.Time, logger *zap.Logger) (map[int]*Grant, error) {
	grants := make(map[int]*Grant)

	groupIDs, err := activeGroupIDs(tx, account)
	if err != nil {
		return nil, err
	}
	if len(groupIDs) > 0 {
		var assignments []models.GroupSecurityAssignment
		if err := tx.Where("group_id IN ? AND is_active = ?", groupIDs, true).Find(&assignments).Error; err != nil {
			return nil, err
		}
		for _, a := range assignments {
			// Same id through several groups collapses; keep the earliest assignment
			if g, ok := grants[a.SecurityID]; ok && !a.AssignedDate.Before(g.AssignedDate) {
				continue
			}
			grants[a.SecurityID] = &Grant{
				SecurityID:   a.SecurityID,
				Source:       SourceGroup,
				AssignedDate: a.AssignedDate,
			}
		}
	}

	var direct []models.EmployeeSecurityAssignment
	if err := tx.Where("account = ? AND is_active = ?", account.String(), true).Find(&direct).Error; err != nil {
		return nil, err
	}
	for _, d := range direct {
		if !d.EffectiveAt(now) {
			continue
		}
		if g, ok := grants[d.SecurityID]; ok && g.Source == SourceDirect && !outlasts(d.ExpiryDate, g.ExpiryDate) {
			continue
		}
		grants[d.SecurityID] = &Grant{
			SecurityID:   d.SecurityID,
			Source:       SourceDirect,
			AssignedDate: d.AssignedDate,
			ExpiryDate:   d.ExpiryDate,
			Notes:        d.Notes,
		}
	}

	if len(grants) == 0 {
		return grants, nil
	}

	ids := make([]int, 0, len(grants))
	for id := range grants {
		ids = append(ids, id)
	}
	defs, err := lookupDefinitions(tx, ids)
	if err != nil {
		return nil, err
	}
	for id, g := range grants {
		def, ok := defs[id]
		if !ok {
			logger.Debug("Excluding grant for missing or inactive security definition",
				zap.String("account", account.String()),
				zap.Int("security_id", id),
				zap.Stringer("source", g.Source))
			delete(grants, id)
			continue
		}
		g.Definition = def
	}
	return grants, nil
}

// outlasts reports whether expiry a is later than b; nil never expires.
func outlasts(a, b *time.Time) bool {
	if b == nil {
		return false
	}
	return a == nil || a.After(*b)
}

func sortedGrants(grants map[int]*Grant) []Grant {
	defs := make([]models.SecurityDefinition, 0, len(grants))
	for _, g := range grants {
		defs = append(defs, g.Definition)
	}
	sortCatalog(defs)

	out := make([]Grant, 0, len(defs))
	for _, d := range defs {
		out = append(out, *grants[d.SecurityID])
	}
	return out
}

// sortByPosition orders grants by sort order, then name, then id.
func sortByPosition(grants []Grant) {
	sort.SliceStable(grants, func(i, j int) bool {
		a, b := grants[i].Definition, grants[j].Definition
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.SecurityID < b.SecurityID
	})
}
