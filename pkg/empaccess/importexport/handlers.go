// Package importexport moves the security catalog between environments as a
// single JSON document: systems, definitions, groups and group grants.
package importexport

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/logging"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

// FormatVersion identifies the catalog document layout.
const FormatVersion = 1

// Handler handles import/export requests
type Handler struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB, logger *zap.Logger) *Handler {
	return &Handler{db: db, logger: logging.OrNop(logger), now: time.Now}
}

// CatalogDocument is the exported catalog
type CatalogDocument struct {
	Version     int                `json:"version"`
	ExportedAt  time.Time          `json:"exported_at"`
	Systems     []SystemRecord     `json:"systems"`
	Definitions []DefinitionRecord `json:"definitions"`
	Groups      []GroupRecord      `json:"groups"`
}

// SystemRecord is a system keyed by its code
type SystemRecord struct {
	Code            string `json:"system_code"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	IconBase64      string `json:"icon_base64,omitempty"`
	BaseURL         string `json:"base_url,omitempty"`
	IsInternal      bool   `json:"is_internal"`
	RequiresManager bool   `json:"requires_manager"`
	IsActive        bool   `json:"is_active"`
}

// DefinitionRecord is a security definition keyed by its security id. An
// empty SystemCode marks a system-less definition.
type DefinitionRecord struct {
	SecurityID   int    `json:"security_id"`
	SystemCode   string `json:"system_code,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ResourceType string `json:"resource_type"`
	ResourcePath string `json:"resource_path,omitempty"`
	Category     string `json:"category,omitempty"`
	SortOrder    int    `json:"sort_order"`
	IsActive     bool   `json:"is_active"`
}

// GroupRecord is a group keyed by name with the security ids it grants
type GroupRecord struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	SecurityIDs []int  `json:"security_ids"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *ImportResult) skip(format string, args ...interface{}) {
	r.Skipped++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Export writes the whole catalog, including deactivated rows
func (h *Handler) Export(c *gin.Context) {
	doc, err := h.export(h.db.WithContext(c.Request.Context()))
	if err != nil {
		h.logger.Error("Catalog export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export catalog"})
		return
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=empaccess-catalog.json")
	}

	c.JSON(http.StatusOK, doc)
}

func (h *Handler) export(db *gorm.DB) (*CatalogDocument, error) {
	doc := &CatalogDocument{
		Version:     FormatVersion,
		ExportedAt:  h.now().UTC(),
		Systems:     []SystemRecord{},
		Definitions: []DefinitionRecord{},
		Groups:      []GroupRecord{},
	}

	var systems []models.System
	if err := db.Order("code").Find(&systems).Error; err != nil {
		return nil, err
	}
	for _, s := range systems {
		doc.Systems = append(doc.Systems, SystemRecord{
			Code:            s.Code,
			Name:            s.Name,
			Description:     s.Description,
			IconBase64:      s.IconBase64,
			BaseURL:         s.BaseURL,
			IsInternal:      s.IsInternal,
			RequiresManager: s.RequiresManager,
			IsActive:        s.IsActive,
		})
	}

	var defs []models.SecurityDefinition
	if err := db.Preload("System").Order("security_id").Find(&defs).Error; err != nil {
		return nil, err
	}
	for _, d := range defs {
		doc.Definitions = append(doc.Definitions, DefinitionRecord{
			SecurityID:   d.SecurityID,
			SystemCode:   d.SystemCode(),
			Name:         d.Name,
			Description:  d.Description,
			ResourceType: d.ResourceType,
			ResourcePath: d.ResourcePath,
			Category:     d.Category,
			SortOrder:    d.SortOrder,
			IsActive:     d.IsActive,
		})
	}

	var groups []models.Group
	if err := db.Preload("Assignments", "is_active = ?", true).Order("name").Find(&groups).Error; err != nil {
		return nil, err
	}
	for _, g := range groups {
		ids := make([]int, 0, len(g.Assignments))
		for _, a := range g.Assignments {
			ids = append(ids, a.SecurityID)
		}
		sort.Ints(ids)
		doc.Groups = append(doc.Groups, GroupRecord{
			Name:        g.Name,
			Description: g.Description,
			IsActive:    g.IsActive,
			SecurityIDs: ids,
		})
	}
	return doc, nil
}

// Import upserts a catalog document by natural key in one transaction.
// Invalid records are skipped and reported; a store failure rolls back everything.
func (h *Handler) Import(c *gin.Context) {
	var doc CatalogDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if doc.Version != 0 && doc.Version != FormatVersion {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported catalog version %d", doc.Version)})
		return
	}

	account, _ := auth.GetAccount(c)
	imp := importer{actor: account.String(), now: h.now()}
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return imp.run(tx, &doc)
	})
	if err != nil {
		h.logger.Error("Catalog import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import catalog"})
		return
	}

	h.logger.Info("Catalog imported",
		zap.String("actor", imp.actor),
		zap.Int("imported", imp.result.Imported),
		zap.Int("skipped", imp.result.Skipped))
	c.JSON(http.StatusOK, imp.result)
}

type importer struct {
	actor  string
	now    time.Time
	result ImportResult
}

func (im *importer) run(tx *gorm.DB, doc *CatalogDocument) error {
	for i, rec := range doc.Systems {
		if err := im.system(tx, i, rec); err != nil {
			return err
		}
	}
	for i, rec := range doc.Definitions {
		if err := im.definition(tx, i, rec); err != nil {
			return err
		}
	}
	for i, rec := range doc.Groups {
		if err := im.group(tx, i, rec); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) system(tx *gorm.DB, i int, rec SystemRecord) error {
	code, name := strings.TrimSpace(rec.Code), strings.TrimSpace(rec.Name)
	if code == "" || name == "" {
		im.result.skip("system %d: code and name are required", i)
		return nil
	}

	var system models.System
	err := tx.Where("LOWER(code) = ?", strings.ToLower(code)).First(&system).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		system = models.System{Code: code, CreatedAt: im.now, CreatedBy: im.actor}
	case err != nil:
		return err
	default:
		now := im.now
		system.ModifiedAt = &now
		system.ModifiedBy = im.actor
	}

	system.Name = name
	system.Description = rec.Description
	system.IconBase64 = rec.IconBase64
	system.BaseURL = rec.BaseURL
	system.IsInternal = rec.IsInternal
	system.RequiresManager = rec.RequiresManager
	system.IsActive = rec.IsActive
	if err := tx.Save(&system).Error; err != nil {
		return err
	}
	im.result.Imported++
	return nil
}

func (im *importer) definition(tx *gorm.DB, i int, rec DefinitionRecord) error {
	if rec.SecurityID <= 0 {
		im.result.skip("definition %d: security id must be positive", i)
		return nil
	}
	if strings.TrimSpace(rec.Name) == "" {
		im.result.skip("definition %d: name is required", rec.SecurityID)
		return nil
	}
	resourceType := models.NormalizeResourceType(rec.ResourceType)
	switch resourceType {
	case models.ResourceScreen, models.ResourceButton, models.ResourceController:
	default:
		im.result.skip("definition %d: unknown resource type %q", rec.SecurityID, rec.ResourceType)
		return nil
	}

	var systemID *uint
	if code := strings.TrimSpace(rec.SystemCode); code != "" {
		var system models.System
		if err := tx.Where("LOWER(code) = ?", strings.ToLower(code)).First(&system).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				im.result.skip("definition %d: unknown system %q", rec.SecurityID, code)
				return nil
			}
			return err
		}
		systemID = &system.ID
	}

	var def models.SecurityDefinition
	err := tx.Where("security_id = ?", rec.SecurityID).First(&def).Error
	created := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		def = models.SecurityDefinition{SecurityID: rec.SecurityID, CreatedAt: im.now, CreatedBy: im.actor}
		created = true
	case err != nil:
		return err
	default:
		now := im.now
		def.ModifiedAt = &now
		def.ModifiedBy = im.actor
	}

	def.SystemID = systemID
	def.Name = strings.TrimSpace(rec.Name)
	def.Description = rec.Description
	def.ResourceType = resourceType
	def.ResourcePath = rec.ResourcePath
	def.Category = rec.Category
	def.SortOrder = rec.SortOrder
	def.IsActive = rec.IsActive
	// the primary key is caller-assigned, so Save alone cannot tell insert from update
	save := tx.Save
	if created {
		save = tx.Create
	}
	if err := save(&def).Error; err != nil {
		return err
	}
	im.result.Imported++
	return nil
}

// group upserts the group and adds any missing assignments. Assignments
// absent from the document are left in place.
func (im *importer) group(tx *gorm.DB, i int, rec GroupRecord) error {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		im.result.skip("group %d: name is required", i)
		return nil
	}

	var group models.Group
	err := tx.Where("name = ?", name).First(&group).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		group = models.Group{Name: name, CreatedBy: im.actor}
	case err != nil:
		return err
	}
	group.Description = rec.Description
	group.IsActive = rec.IsActive
	if err := tx.Omit("Members", "Assignments").Save(&group).Error; err != nil {
		return err
	}

	for _, id := range rec.SecurityIDs {
		var defs int64
		if err := tx.Model(&models.SecurityDefinition{}).Where("security_id = ?", id).Count(&defs).Error; err != nil {
			return err
		}
		if defs == 0 {
			im.result.skip("group %q: unknown security id %d", name, id)
			continue
		}

		var existing int64
		if err := tx.Model(&models.GroupSecurityAssignment{}).
			Where("group_id = ? AND security_id = ? AND is_active = ?", group.ID, id, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			continue
		}
		if err := tx.Create(&models.GroupSecurityAssignment{
			GroupID:      group.ID,
			SecurityID:   id,
			IsActive:     true,
			AssignedBy:   im.actor,
			AssignedDate: im.now,
		}).Error; err != nil {
			return err
		}
	}
	im.result.Imported++
	return nil
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/import", h.Import)
	rg.GET("/export", h.Export)
}
