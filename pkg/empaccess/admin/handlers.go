// Package admin serves operator views: service-wide counts and the
// resolved access of any account.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Handler handles admin requests
type Handler struct {
	db     *gorm.DB
	engine *access.Engine
	logger *zap.Logger
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, engine *access.Engine, logger *zap.Logger) *Handler {
	return &Handler{db: db, engine: engine, logger: logging.OrNop(logger)}
}

// StatsResponse represents service-wide statistics
type StatsResponse struct {
	access.CatalogStats
	ActiveMemberships   int64 `json:"active_memberships"`
	ActiveDirectGrants  int64 `json:"active_direct_grants"`
	GroupAssignments    int64 `json:"group_assignments"`
	DirectoryEmployees  int64 `json:"directory_employees"`
	ActiveAPIKeys       int64 `json:"active_api_keys"`
	LocalCredentials    int64 `json:"local_credentials"`
	InactiveDefinitions int64 `json:"inactive_definitions"`
}

// AccountAccessResponse is the full resolved access of one account
type AccountAccessResponse struct {
	Profile      *access.Profile                     `json:"profile"`
	Grants       []access.Grant                      `json:"grants"`
	DirectGrants []models.EmployeeSecurityAssignment `json:"direct_grants"`
}

// GetStats returns service-wide statistics
func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	catalog, err := h.engine.Catalog().Stats(ctx)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	stats := StatsResponse{CatalogStats: *catalog}
	db := h.db.WithContext(ctx)
	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&stats.ActiveMemberships, &models.GroupMembership{}, "is_active = ?", []interface{}{true}},
		{&stats.ActiveDirectGrants, &models.EmployeeSecurityAssignment{}, "is_active = ?", []interface{}{true}},
		{&stats.GroupAssignments, &models.GroupSecurityAssignment{}, "is_active = ?", []interface{}{true}},
		{&stats.DirectoryEmployees, &models.Employee{}, "active = ?", []interface{}{true}},
		{&stats.ActiveAPIKeys, &models.APIKey{}, "is_active = ?", []interface{}{true}},
		{&stats.LocalCredentials, &models.Credential{}, "", nil},
		{&stats.InactiveDefinitions, &models.SecurityDefinition{}, "is_active = ?", []interface{}{false}},
	}
	for _, cnt := range counts {
		q := db.Model(cnt.model)
		if cnt.where != "" {
			q = q.Where(cnt.where, cnt.args...)
		}
		if err := q.Count(cnt.dst).Error; err != nil {
			h.logger.Error("Failed to count", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
			return
		}
	}

	c.JSON(http.StatusOK, stats)
}

// AccountAccess returns the profile, grant provenance and direct grant
// history of any account
func (h *Handler) AccountAccess(c *gin.Context) {
	account, err := identity.ResolveAccount(c.Param("account"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	profile, err := h.engine.Profile(ctx, account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	grants, err := h.engine.GrantDetail(ctx, account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	direct, err := h.engine.Assignments().DirectGrants(ctx, account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	resp := AccountAccessResponse{
		Profile:      profile,
		Grants:       grants,
		DirectGrants: direct,
	}
	if resp.Grants == nil {
		resp.Grants = []access.Grant{}
	}
	if resp.DirectGrants == nil {
		resp.DirectGrants = []models.EmployeeSecurityAssignment{}
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/accounts/:account/access", h.AccountAccess)
}
