// Package employees administers the employee directory and each account's
// group memberships and direct grants.
package employees

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
	"github.com/mikepea/empaccess/pkg/empaccess/apierr"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// Handler handles employee directory and assignment requests
type Handler struct {
	db      *gorm.DB
	members *access.MembershipStore
	assigns *access.AssignmentStore
	logger  *zap.Logger
}

// NewHandler creates a new employees handler
func NewHandler(db *gorm.DB, engine *access.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		db:      db,
		members: engine.Memberships(),
		assigns: engine.Assignments(),
		logger:  logging.OrNop(logger),
	}
}

// UpsertEmployeeRequest carries directory fields. Nil fields are left unchanged
// on update and empty on create.
type UpsertEmployeeRequest struct {
	Name           *string    `json:"name"`
	Email          *string    `json:"email"`
	Department     *string    `json:"department"`
	Position       *string    `json:"position"`
	JobTitle       *string    `json:"job_title"`
	EmployeeNumber *string    `json:"employee_number"`
	HireDate       *time.Time `json:"hire_date"`
	Active         *bool      `json:"active"`
}

// MembershipResponse is one of an account's active groups
type MembershipResponse struct {
	GroupID      uint      `json:"group_id"`
	GroupName    string    `json:"group_name"`
	AssignedBy   string    `json:"assigned_by"`
	AssignedDate time.Time `json:"assigned_date"`
}

// GrantRequest is the body of a direct grant request
type GrantRequest struct {
	SecurityID int        `json:"security_id" binding:"required"`
	ExpiryDate *time.Time `json:"expiry_date"`
	Notes      string     `json:"notes"`
}

func parseAccount(c *gin.Context) (identity.Account, bool) {
	account, err := identity.ResolveAccount(c.Param("account"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account"})
		return "", false
	}
	return account, true
}

func actor(c *gin.Context) string {
	account, _ := auth.GetAccount(c)
	return account.String()
}

// List returns directory records ordered by name. ?q= filters by account,
// name or email; ?department= filters by department.
func (h *Handler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Order("name, account")

	if search := strings.ToLower(strings.TrimSpace(c.Query("q"))); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("account LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern, pattern)
	}
	if dept := c.Query("department"); dept != "" {
		query = query.Where("department = ?", dept)
	}

	var employees []models.Employee
	if err := query.Find(&employees).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch employees"})
		return
	}
	if employees == nil {
		employees = []models.Employee{}
	}

	c.JSON(http.StatusOK, employees)
}

// Get returns one directory record
func (h *Handler) Get(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}

	var employee models.Employee
	if err := h.db.WithContext(c.Request.Context()).Where("account = ?", account.String()).First(&employee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Employee not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch employee"})
		return
	}

	c.JSON(http.StatusOK, employee)
}

// Upsert creates or updates the directory record of an account
func (h *Handler) Upsert(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}

	var req UpsertEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	var employee models.Employee
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("account = ?", account.String()).First(&employee).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			employee = models.Employee{Account: account.String(), Active: true}
			status = http.StatusCreated
		case err != nil:
			return err
		}

		apply(&employee, req)
		return tx.Save(&employee).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save employee"})
		return
	}

	h.logger.Info("Employee record saved", zap.String("account", account.String()), zap.String("actor", actor(c)))
	c.JSON(status, employee)
}

func apply(e *models.Employee, req UpsertEmployeeRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&e.Name, req.Name)
	set(&e.Email, req.Email)
	set(&e.Department, req.Department)
	set(&e.Position, req.Position)
	set(&e.JobTitle, req.JobTitle)
	set(&e.EmployeeNumber, req.EmployeeNumber)
	if req.HireDate != nil {
		e.HireDate = req.HireDate
	}
	if req.Active != nil {
		e.Active = *req.Active
	}
}

// Groups returns the account's active group memberships
func (h *Handler) Groups(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}

	memberships, err := h.members.ActiveMemberships(c.Request.Context(), account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	resp := make([]MembershipResponse, len(memberships))
	for i, m := range memberships {
		resp[i] = MembershipResponse{
			GroupID:      m.GroupID,
			GroupName:    m.Group.Name,
			AssignedBy:   m.AssignedBy,
			AssignedDate: m.AssignedDate,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func parseGroupID(c *gin.Context) (uint, bool) {
	groupID, err := strconv.ParseUint(c.Param("groupId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, false
	}
	return uint(groupID), true
}

// AddToGroup adds the account to a group
func (h *Handler) AddToGroup(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	m, err := h.members.AddMember(c.Request.Context(), account, groupID, actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

// RemoveFromGroup removes the account from a group
func (h *Handler) RemoveFromGroup(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	if err := h.members.RemoveMember(c.Request.Context(), account, groupID, actor(c)); err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Removed from group"})
}

// Grants returns every direct grant row of the account, newest first
func (h *Handler) Grants(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}

	grants, err := h.assigns.DirectGrants(c.Request.Context(), account)
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}
	if grants == nil {
		grants = []models.EmployeeSecurityAssignment{}
	}

	c.JSON(http.StatusOK, grants)
}

// Grant gives the account a direct grant, optionally expiring
func (h *Handler) Grant(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	grant, err := h.assigns.GrantDirect(c.Request.Context(), account, access.DirectGrantInput{
		SecurityID: req.SecurityID,
		ExpiryDate: req.ExpiryDate,
		Notes:      req.Notes,
	}, actor(c))
	if err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, grant)
}

// Revoke deactivates one of the account's direct grants
func (h *Handler) Revoke(c *gin.Context) {
	account, ok := parseAccount(c)
	if !ok {
		return
	}
	grantID, err := strconv.ParseUint(c.Param("grantId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid grant ID"})
		return
	}

	if err := h.assigns.RevokeDirect(c.Request.Context(), account, uint(grantID), actor(c)); err != nil {
		apierr.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Grant revoked"})
}

// RegisterRoutes registers employee routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:account", h.Get)
	rg.PUT("/:account", h.Upsert)
	rg.GET("/:account/groups", h.Groups)
	rg.POST("/:account/groups/:groupId", h.AddToGroup)
	rg.DELETE("/:account/groups/:groupId", h.RemoveFromGroup)
	rg.GET("/:account/grants", h.Grants)
	rg.POST("/:account/grants", h.Grant)
	rg.DELETE("/:account/grants/:grantId", h.Revoke)
}
