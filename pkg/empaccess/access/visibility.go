package access

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Access levels reported per visible system.
const (
	AccessFull    = "Full"
	AccessPartial = "Partial"
)

// DefaultManagerTitles are the job titles classified as manager level.
var DefaultManagerTitles = []string{
	"manager",
	"executive manager",
	"senior manager",
	"division leader",
	"professional",
	"senior division leader",
}

// ManagerClassifier decides whether a job title is manager level.
type ManagerClassifier interface {
	IsManagerLevel(jobTitle string) bool
}

// TitleClassifier matches job titles exactly against a fixed list, ignoring
// case and surrounding or repeated whitespace. "Senior Manager Assistant" is
// not "senior manager".
type TitleClassifier struct {
	titles map[string]struct{}
}

// NewTitleClassifier builds a classifier over titles.
func NewTitleClassifier(titles ...string) *TitleClassifier {
	c := &TitleClassifier{titles: make(map[string]struct{}, len(titles))}
	for _, t := range titles {
		if t = normalizeTitle(t); t != "" {
			c.titles[t] = struct{}{}
		}
	}
	return c
}

// DefaultTitleClassifier classifies with DefaultManagerTitles.
func DefaultTitleClassifier() *TitleClassifier {
	return NewTitleClassifier(DefaultManagerTitles...)
}

func (c *TitleClassifier) IsManagerLevel(jobTitle string) bool {
	_, ok := c.titles[normalizeTitle(jobTitle)]
	return ok
}

func normalizeTitle(t string) string {
	return strings.ToLower(strings.Join(strings.Fields(t), " "))
}

// JobTitleSource resolves an account's job title.
type JobTitleSource interface {
	JobTitle(ctx context.Context, account identity.Account) (string, error)
}

// DirectoryTitles reads job titles from the employee directory table.
type DirectoryTitles struct {
	db *gorm.DB
}

// NewDirectoryTitles creates a title source over db.
func NewDirectoryTitles(db *gorm.DB) *DirectoryTitles {
	return &DirectoryTitles{db: db}
}

// JobTitle returns "" for accounts without an active directory record.
func (d *DirectoryTitles) JobTitle(ctx context.Context, account identity.Account) (string, error) {
	var employee models.Employee
	err := d.db.WithContext(ctx).
		Where("account = ? AND active = ?", account.String(), true).
		First(&employee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", storeErr("job_title", err)
	}
	return employee.JobTitle, nil
}

// SystemAccess is a visible system with the account's permission counts in it.
type SystemAccess struct {
	models.System
	TotalPermissions      int    `json:"total_permissions"`
	ScreenPermissions     int    `json:"screen_permissions"`
	ButtonPermissions     int    `json:"button_permissions"`
	ControllerPermissions int    `json:"controller_permissions"`
	AccessLevel           string `json:"access_level"`
}

// VisibilityFilter determines which systems an account may see.
type VisibilityFilter struct {
	db         *gorm.DB
	logger     *zap.Logger
	grants     *GrantResolver
	classifier ManagerClassifier
	titles     JobTitleSource
}

// NewVisibilityFilter creates a filter over db.
func NewVisibilityFilter(db *gorm.DB, opts ...Option) *VisibilityFilter {
	o := buildOptions(opts)
	titles := o.titles
	if titles == nil {
		titles = NewDirectoryTitles(db)
	}
	return &VisibilityFilter{
		db:         db,
		logger:     o.logger,
		grants:     NewGrantResolver(db, opts...),
		classifier: o.classifier,
		titles:     titles,
	}
}

// IsManager reports whether the account's job title is manager level.
func (v *VisibilityFilter) IsManager(ctx context.Context, account identity.Account) (bool, error) {
	title, err := v.titles.JobTitle(ctx, account)
	if err != nil {
		return false, err
	}
	return v.classifier.IsManagerLevel(title), nil
}

// VisibleSystems returns the systems reachable through the account's
// effective grants, ordered by name then code. Manager-only systems are
// dropped for non-managers even when grants inside them are held.
func (v *VisibilityFilter) VisibleSystems(ctx context.Context, account identity.Account) ([]SystemAccess, error) {
	grants, err := v.grants.resolve(ctx, account)
	if err != nil {
		return nil, err
	}
	manager, err := v.IsManager(ctx, account)
	if err != nil {
		return nil, err
	}
	return v.visibleFrom(ctx, grants, manager)
}

// visibleFrom applies the manager gate to already resolved grants. Gating
// happens strictly after grant computation.
func (v *VisibilityFilter) visibleFrom(ctx context.Context, grants map[int]*Grant, manager bool) ([]SystemAccess, error) {
	bySystem := make(map[uint]*SystemAccess)
	for _, g := range grants {
		sys := g.Definition.System
		if sys == nil {
			continue
		}
		if sys.RequiresManager && !manager {
			continue
		}
		sa, ok := bySystem[sys.ID]
		if !ok {
			sa = &SystemAccess{System: *sys}
			bySystem[sys.ID] = sa
		}
		sa.TotalPermissions++
		switch models.NormalizeResourceType(g.Definition.ResourceType) {
		case models.ResourceScreen:
			sa.ScreenPermissions++
		case models.ResourceButton:
			sa.ButtonPermissions++
		case models.ResourceController:
			sa.ControllerPermissions++
		}
	}
	if len(bySystem) == 0 {
		return []SystemAccess{}, nil
	}

	systemIDs := make([]uint, 0, len(bySystem))
	for id := range bySystem {
		systemIDs = append(systemIDs, id)
	}
	var totals []struct {
		SystemID uint
		Total    int
	}
	err := v.db.WithContext(ctx).Model(&models.SecurityDefinition{}).
		Select("system_id, COUNT(*) AS total").
		Where("is_active = ? AND system_id IN ?", true, systemIDs).
		Group("system_id").
		Scan(&totals).Error
	if err != nil {
		return nil, storeErr("system_totals", err)
	}
	available := make(map[uint]int, len(totals))
	for _, t := range totals {
		available[t.SystemID] = t.Total
	}

	out := make([]SystemAccess, 0, len(bySystem))
	for id, sa := range bySystem {
		sa.AccessLevel = AccessPartial
		if sa.TotalPermissions >= available[id] {
			sa.AccessLevel = AccessFull
		}
		out = append(out, *sa)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// visibleSystemIDs is the set of system ids in systems.
func visibleSystemIDs(systems []SystemAccess) map[uint]struct{} {
	ids := make(map[uint]struct{}, len(systems))
	for _, s := range systems {
		ids[s.ID] = struct{}{}
	}
	return ids
}

var _ ManagerClassifier = (*TitleClassifier)(nil)
var _ JobTitleSource = (*DirectoryTitles)(nil)

