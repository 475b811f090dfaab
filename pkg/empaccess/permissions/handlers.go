// Package permissions exposes the permission query engine to the
// authenticated caller: what can I see, what do I hold, do I hold this.
package permissions

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
)

// MaxBatchSize caps the ids accepted by a single batch check.
const MaxBatchSize = 500

// Handler handles permission queries for the authenticated account
type Handler struct {
	engine *access.Engine
	logger *zap.Logger
}

// NewHandler creates a new permissions handler
func NewHandler(engine *access.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logging.OrNop(logger)}
}

// BatchCheckResponse is the answer to a batch check, one result per distinct
// id in request order.
type BatchCheckResponse struct {
	Results []access.PermissionCheckResult `json:"results"`
	Total   int                            `json:"total"`
	Granted int                            `json:"granted"`
}

// SystemPermissionsResponse lists the caller's permissions inside one system
type SystemPermissionsResponse struct {
	SystemCode  string                      `json:"system_code"`
	Permissions []access.EmployeePermission `json:"permissions"`
}

func caller(c *gin.Context) (identity.Account, bool) {
	account, ok := auth.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return "", false
	}
	return account, true
}

// AvailableSystems returns the systems the caller may see
func (h *Handler) AvailableSystems(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	systems, err := h.engine.VisibleSystems(c.Request.Context(), account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, systems)
}

// Check answers whether the caller holds a single security id
func (h *Handler) Check(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	securityID, err := strconv.Atoi(c.Param("securityId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid security ID"})
		return
	}

	result, err := h.engine.CheckAccess(c.Request.Context(), account, securityID)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SystemPermissions returns the caller's held permissions within one system
func (h *Handler) SystemPermissions(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	code := strings.TrimSpace(c.Param("systemCode"))
	perms, err := h.engine.PermissionsForSystem(c.Request.Context(), account, code)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, SystemPermissionsResponse{SystemCode: code, Permissions: perms})
}

// UserPermissions returns every security id the caller holds
func (h *Handler) UserPermissions(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	ids, err := h.engine.AllSecurityIDsFor(c.Request.Context(), account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ids)
}

// BySystem returns the caller's permissions grouped by visible system
func (h *Handler) BySystem(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	sets, err := h.engine.PermissionsBySystem(c.Request.Context(), account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, sets)
}

// BatchCheck checks a JSON array of security ids in one resolution
func (h *Handler) BatchCheck(c *gin.Context) {
	account, ok := caller(c)
	if !ok {
		return
	}

	var ids []int
	if err := c.ShouldBindJSON(&ids); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be an array of security IDs"})
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one security ID is required"})
		return
	}
	if len(ids) > MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many security IDs (max " + strconv.Itoa(MaxBatchSize) + ")"})
		return
	}

	results, err := h.engine.BatchCheckAccess(c.Request.Context(), account, ids)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	resp := BatchCheckResponse{Results: make([]access.PermissionCheckResult, 0, len(results))}
	seen := make(map[int]struct{}, len(results))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r := results[id]
		resp.Results = append(resp.Results, r)
		if r.HasAccess {
			resp.Granted++
		}
	}
	resp.Total = len(resp.Results)

	c.JSON(http.StatusOK, resp)
}

// SecurityDefinitions lists the usable catalog, optionally narrowed with ?system=CODE
func (h *Handler) SecurityDefinitions(c *gin.Context) {
	defs, err := h.engine.Catalog().DefinitionsFor(c.Request.Context(), c.Query("system"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, defs)
}

// RegisterRoutes registers permission routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/available-systems", h.AvailableSystems)
	rg.GET("/check/:securityId", h.Check)
	rg.GET("/system/:systemCode", h.SystemPermissions)
	rg.GET("/user-permissions", h.UserPermissions)
	rg.GET("/by-system", h.BySystem)
	rg.POST("/batch-check", h.BatchCheck)
	rg.GET("/security-definitions", h.SecurityDefinitions)
}
