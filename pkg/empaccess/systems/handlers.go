// Package systems serves the system registry and its security catalog.
package systems

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Handler handles system and security definition requests
type Handler struct {
	catalog *access.Catalog
	logger  *zap.Logger
}

// NewHandler creates a new systems handler
func NewHandler(catalog *access.Catalog, logger *zap.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logging.OrNop(logger)}
}

// SystemRequest is the body of create and update requests
type SystemRequest struct {
	Code            string `json:"system_code"`
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	IconBase64      string `json:"icon_base64"`
	BaseURL         string `json:"base_url"`
	IsInternal      bool   `json:"is_internal"`
	RequiresManager bool   `json:"requires_manager"`
}

func (r SystemRequest) input() access.SystemInput {
	return access.SystemInput{
		Code:            r.Code,
		Name:            r.Name,
		Description:     r.Description,
		IconBase64:      r.IconBase64,
		BaseURL:         r.BaseURL,
		IsInternal:      r.IsInternal,
		RequiresManager: r.RequiresManager,
	}
}

// DefinitionRequest is the body of a create security definition request
type DefinitionRequest struct {
	SecurityID   int    `json:"security_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	ResourceType string `json:"resource_type" binding:"required"`
	ResourcePath string `json:"resource_path"`
	Category     string `json:"category"`
	SortOrder    int    `json:"sort_order"`
}

func actor(c *gin.Context) string {
	account, _ := auth.GetAccount(c)
	return account.String()
}

// List returns every active system
func (h *Handler) List(c *gin.Context) {
	systems, err := h.catalog.Systems(c.Request.Context())
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	if systems == nil {
		systems = []models.System{}
	}

	c.JSON(http.StatusOK, systems)
}

// Search returns active systems matching ?q=, best matches first
func (h *Handler) Search(c *gin.Context) {
	systems, err := h.catalog.SearchSystems(c.Request.Context(), c.Query("q"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	if systems == nil {
		systems = []models.System{}
	}

	c.JSON(http.StatusOK, systems)
}

// Stats returns catalog-wide counts
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.catalog.Stats(c.Request.Context())
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Get returns one active system by code
func (h *Handler) Get(c *gin.Context) {
	system, err := h.catalog.SystemByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, system)
}

// Definitions returns the usable security definitions of a system
func (h *Handler) Definitions(c *gin.Context) {
	ctx := c.Request.Context()
	system, err := h.catalog.SystemByCode(ctx, c.Param("code"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	defs, err := h.catalog.DefinitionsFor(ctx, system.Code)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, defs)
}

// Groups returns the groups holding grants inside a system
func (h *Handler) Groups(c *gin.Context) {
	groups, err := h.catalog.SystemGroups(c.Request.Context(), c.Param("code"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	if groups == nil {
		groups = []access.SystemGroup{}
	}

	c.JSON(http.StatusOK, groups)
}

// Users returns the accounts holding group grants inside a system
func (h *Handler) Users(c *gin.Context) {
	users, err := h.catalog.SystemUsers(c.Request.Context(), c.Param("code"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	if users == nil {
		users = []access.SystemUser{}
	}

	c.JSON(http.StatusOK, users)
}

// Create registers a new system
func (h *Handler) Create(c *gin.Context) {
	var req SystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	system, err := h.catalog.CreateSystem(c.Request.Context(), req.input(), actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, system)
}

// Update replaces the editable fields of a system. The code in the path wins
// over any code in the body.
func (h *Handler) Update(c *gin.Context) {
	var req SystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	system, err := h.catalog.UpdateSystem(c.Request.Context(), c.Param("code"), req.input(), actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, system)
}

// Delete deactivates a system
func (h *Handler) Delete(c *gin.Context) {
	if err := h.catalog.DeactivateSystem(c.Request.Context(), c.Param("code"), actor(c)); err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "System deactivated"})
}

// CreateDefinition adds a security definition to a system
func (h *Handler) CreateDefinition(c *gin.Context) {
	var req DefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, err := h.catalog.CreateDefinition(c.Request.Context(), c.Param("code"), access.DefinitionInput{
		SecurityID:   req.SecurityID,
		Name:         req.Name,
		Description:  req.Description,
		ResourceType: req.ResourceType,
		ResourcePath: req.ResourcePath,
		Category:     req.Category,
		SortOrder:    req.SortOrder,
	}, actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, def)
}

// DeleteDefinition deactivates a security definition
func (h *Handler) DeleteDefinition(c *gin.Context) {
	securityID, err := strconv.Atoi(c.Param("securityId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid security ID"})
		return
	}

	if err := h.catalog.DeactivateDefinition(c.Request.Context(), securityID, actor(c)); err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Security definition deactivated"})
}

// RegisterRoutes registers read-only system routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/search", h.Search)
	rg.GET("/stats", h.Stats)
	rg.GET("/:code", h.Get)
	rg.GET("/:code/security-definitions", h.Definitions)
	rg.GET("/:code/groups", h.Groups)
	rg.GET("/:code/users", h.Users)
}

// RegisterAdminRoutes registers system mutations. The caller guards rg.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.PUT("/:code", h.Update)
	rg.DELETE("/:code", h.Delete)
	rg.POST("/:code/security-definitions", h.CreateDefinition)
}

// RegisterDefinitionRoutes registers routes addressed by security id. The caller guards rg.
func (h *Handler) RegisterDefinitionRoutes(rg *gin.RouterGroup) {
	rg.DELETE("/:securityId", h.DeleteDefinition)
}
