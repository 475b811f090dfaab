package groups

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	Account      string    `json:"account"`
	AssignedBy   string    `json:"assigned_by"`
	AssignedDate time.Time `json:"assigned_date"`
}

// AddMemberRequest represents a request to add a member
type AddMemberRequest struct {
	Account string `json:"account" binding:"required"`
}

// AssignSecurityRequest represents a request to grant a security id to a group
type AssignSecurityRequest struct {
	SecurityID int `json:"security_id" binding:"required"`
}

// ListMembers returns the active members of a group
func (h *Handler) ListMembers(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	memberships, err := h.members.Members(c.Request.Context(), groupID)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i, m := range memberships {
		members[i] = MemberResponse{
			Account:      m.Account,
			AssignedBy:   m.AssignedBy,
			AssignedDate: m.AssignedDate,
		}
	}

	c.JSON(http.StatusOK, members)
}

// AddMember adds an account to a group
func (h *Handler) AddMember(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	account, err := identity.ResolveAccount(req.Account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	m, err := h.members.AddMember(c.Request.Context(), account, groupID, actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, MemberResponse{
		Account:      m.Account,
		AssignedBy:   m.AssignedBy,
		AssignedDate: m.AssignedDate,
	})
}

// RemoveMember removes an account from a group
func (h *Handler) RemoveMember(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	account, err := identity.ResolveAccount(c.Param("account"))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	if err := h.members.RemoveMember(c.Request.Context(), account, groupID, actor(c)); err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// ListSecurity returns the security ids a group grants
func (h *Handler) ListSecurity(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	assignments, err := h.assigns.GroupAssignments(c.Request.Context(), groupID)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	if assignments == nil {
		assignments = []models.GroupSecurityAssignment{}
	}

	c.JSON(http.StatusOK, assignments)
}

// AssignSecurity grants a security id to every member of a group
func (h *Handler) AssignSecurity(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req AssignSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := h.assigns.AssignToGroup(c.Request.Context(), groupID, req.SecurityID, actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, assignment)
}

// UnassignSecurity withdraws a security id from a group
func (h *Handler) UnassignSecurity(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	securityID, err := strconv.Atoi(c.Param("securityId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid security ID"})
		return
	}

	if err := h.assigns.UnassignFromGroup(c.Request.Context(), groupID, securityID, actor(c)); err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Security ID removed from group"})
}

// RegisterMemberRoutes registers member and security assignment routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/members", h.AddMember)
	rg.DELETE("/:id/members/:account", h.RemoveMember)
	rg.GET("/:id/security", h.ListSecurity)
	rg.POST("/:id/security", h.AssignSecurity)
	rg.DELETE("/:id/security/:securityId", h.UnassignSecurity)
}
