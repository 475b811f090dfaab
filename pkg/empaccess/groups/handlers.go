// Package groups administers permission groups: the group records, their
// members and the security ids they grant.
package groups

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Handler handles group-related requests
type Handler struct {
	db      *gorm.DB
	members *access.MembershipStore
	assigns *access.AssignmentStore
	logger  *zap.Logger
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB, engine *access.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		db:      db,
		members: engine.Memberships(),
		assigns: engine.Assignments(),
		logger:  logging.OrNop(logger),
	}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID              uint      `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	IsActive        bool      `json:"is_active"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	MemberCount     int       `json:"member_count"`
	SecurityIDCount int       `json:"security_id_count"`
}

func parseGroupID(c *gin.Context) (uint, bool) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, false
	}
	return uint(groupID), true
}

func actor(c *gin.Context) string {
	account, _ := auth.GetAccount(c)
	return account.String()
}

func (h *Handler) toResponse(group models.Group) (GroupResponse, error) {
	var members, grants int64
	if err := h.db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND is_active = ?", group.ID, true).
		Count(&members).Error; err != nil {
		return GroupResponse{}, err
	}
	if err := h.db.Model(&models.GroupSecurityAssignment{}).
		Where("group_id = ? AND is_active = ?", group.ID, true).
		Count(&grants).Error; err != nil {
		return GroupResponse{}, err
	}

	return GroupResponse{
		ID:              group.ID,
		Name:            group.Name,
		Description:     group.Description,
		IsActive:        group.IsActive,
		CreatedBy:       group.CreatedBy,
		CreatedAt:       group.CreatedAt,
		MemberCount:     int(members),
		SecurityIDCount: int(grants),
	}, nil
}

// List returns the active groups ordered by name; ?all=true includes deactivated groups
func (h *Handler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Order("name")
	if c.Query("all") != "true" {
		q = q.Where("is_active = ?", true)
	}

	var groups []models.Group
	if err := q.Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	resp := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		r, err := h.toResponse(g)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
			return
		}
		resp = append(resp, r)
	}

	c.JSON(http.StatusOK, resp)
}

// Create creates a new active group
func (h *Handler) Create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group name is required"})
		return
	}

	var group models.Group
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Group{}).Where("name = ?", name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return access.ErrConflict
		}

		group = models.Group{
			Name:        name,
			Description: req.Description,
			IsActive:    true,
			CreatedBy:   actor(c),
		}
		return tx.Create(&group).Error
	})
	if errors.Is(err, access.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Group name already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	h.logger.Info("Group created", zap.String("name", group.Name), zap.String("actor", group.CreatedBy))
	c.JSON(http.StatusCreated, GroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		IsActive:    true,
		CreatedBy:   group.CreatedBy,
		CreatedAt:   group.CreatedAt,
	})
}

// Get returns a specific group
func (h *Handler) Get(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var group models.Group
	if err := h.db.WithContext(c.Request.Context()).First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	resp, err := h.toResponse(group)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Update renames or redescribes an active group
func (h *Handler) Update(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var group models.Group
	if err := db.Where("id = ? AND is_active = ?", groupID, true).First(&group).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	// Update fields if provided
	if name := strings.TrimSpace(req.Name); name != "" && name != group.Name {
		var existing int64
		db.Model(&models.Group{}).Where("name = ? AND id <> ?", name, group.ID).Count(&existing)
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Group name already exists"})
			return
		}
		group.Name = name
	}
	if req.Description != "" {
		group.Description = req.Description
	}

	if err := db.Save(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	resp, err := h.toResponse(group)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Delete deactivates a group. Its members and assignments stay on record but
// stop granting anything.
func (h *Handler) Delete(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).Model(&models.Group{}).
		Where("id = ? AND is_active = ?", groupID, true).
		Update("is_active", false)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	h.logger.Info("Group deactivated", zap.Uint("group_id", groupID), zap.String("actor", actor(c)))
	c.JSON(http.StatusOK, gin.H{"message": "Group deactivated"})
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
