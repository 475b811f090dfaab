package systems

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

var testTokens = auth.NewTokenManager("test-secret", time.Hour, "empaccess-test")

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(access.NewCatalog(db), nil)

	api := r.Group("/api")
	api.Use(auth.AuthMiddleware(testTokens))
	handler.RegisterRoutes(api.Group("/systems"))
	handler.RegisterAdminRoutes(api.Group("/systems"))
	handler.RegisterDefinitionRoutes(api.Group("/security-definitions"))
	return r
}

func createSystem(t *testing.T, db *gorm.DB, code, name string, internal bool) models.System {
	s := models.System{Code: code, Name: name, IsInternal: internal, IsActive: true}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("Failed to create system: %v", err)
	}
	return s
}

func createDefinition(t *testing.T, db *gorm.DB, system *models.System, id int, name string) {
	def := models.SecurityDefinition{SecurityID: id, Name: name, ResourceType: models.ResourceScreen, IsActive: true}
	if system != nil {
		def.SystemID = &system.ID
	}
	if err := db.Create(&def).Error; err != nil {
		t.Fatalf("Failed to create definition: %v", err)
	}
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, _, _ := testTokens.GenerateToken("admin")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestListSystems(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createSystem(t, db, "HR", "Human Resources", true)
	createSystem(t, db, "CRM", "Customer Care", false)
	db.Create(&models.System{Code: "OLD", Name: "Legacy", IsActive: false})

	resp := doRequest(router, "GET", "/api/systems", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var systems []models.System
	json.Unmarshal(resp.Body.Bytes(), &systems)
	if len(systems) != 2 {
		t.Fatalf("Expected 2 active systems, got %d", len(systems))
	}
	if systems[0].Code != "CRM" || systems[1].Code != "HR" {
		t.Errorf("Expected systems ordered by code, got %s, %s", systems[0].Code, systems[1].Code)
	}
}

func TestListSystemsEmpty(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doRequest(router, "GET", "/api/systems", nil)
	if resp.Body.String() != "[]" {
		t.Errorf("Expected empty array, got %s", resp.Body.String())
	}
}

func TestSearchSystems(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createSystem(t, db, "HRX", "Payroll", true)
	createSystem(t, db, "HR", "Human Resources", true)

	resp := doRequest(router, "GET", "/api/systems/search?q=hr", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var systems []models.System
	json.Unmarshal(resp.Body.Bytes(), &systems)
	if len(systems) != 2 || systems[0].Code != "HR" {
		t.Errorf("Expected exact code match first, got %+v", systems)
	}

	resp = doRequest(router, "GET", "/api/systems/search?q=", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty query, got %d", resp.Code)
	}
}

func TestGetSystem(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createSystem(t, db, "HR", "Human Resources", true)

	resp := doRequest(router, "GET", "/api/systems/hr", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var system models.System
	json.Unmarshal(resp.Body.Bytes(), &system)
	if system.Name != "Human Resources" {
		t.Errorf("Expected Human Resources, got %s", system.Name)
	}

	resp = doRequest(router, "GET", "/api/systems/NOPE", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestSystemStats(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	hr := createSystem(t, db, "HR", "Human Resources", true)
	createSystem(t, db, "CRM", "Customer Care", false)
	createDefinition(t, db, &hr, 10, "Employee list")

	resp := doRequest(router, "GET", "/api/systems/stats", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var stats access.CatalogStats
	json.Unmarshal(resp.Body.Bytes(), &stats)
	if stats.ActiveSystems != 2 || stats.InternalSystems != 1 || stats.ExternalSystems != 1 {
		t.Errorf("Unexpected system counts: %+v", stats)
	}
	if stats.TotalSecurityDefinitions != 1 {
		t.Errorf("Expected 1 definition, got %d", stats.TotalSecurityDefinitions)
	}
}

func TestSystemDefinitions(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	hr := createSystem(t, db, "HR", "Human Resources", true)
	createDefinition(t, db, &hr, 10, "Employee list")
	createDefinition(t, db, nil, 70, "Portal home")

	resp := doRequest(router, "GET", "/api/systems/HR/security-definitions", nil)
	var defs []models.SecurityDefinition
	json.Unmarshal(resp.Body.Bytes(), &defs)
	if len(defs) != 1 || defs[0].SecurityID != 10 {
		t.Errorf("Expected only definition 10, got %+v", defs)
	}
}

func TestSystemGroupsAndUsers(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	hr := createSystem(t, db, "HR", "Human Resources", true)
	createDefinition(t, db, &hr, 10, "Employee list")

	staff := models.Group{Name: "Staff", IsActive: true}
	db.Create(&staff)
	db.Create(&models.GroupSecurityAssignment{GroupID: staff.ID, SecurityID: 10, IsActive: true, AssignedDate: time.Now()})
	db.Create(&models.GroupMembership{Account: "jdoe", GroupID: staff.ID, AssignedBy: "test", AssignedDate: time.Now(), IsActive: true})

	resp := doRequest(router, "GET", "/api/systems/HR/groups", nil)
	var groups []access.SystemGroup
	json.Unmarshal(resp.Body.Bytes(), &groups)
	if len(groups) != 1 || groups[0].GroupName != "Staff" || groups[0].MemberCount != 1 {
		t.Errorf("Unexpected groups: %+v", groups)
	}

	resp = doRequest(router, "GET", "/api/systems/HR/users", nil)
	var users []access.SystemUser
	json.Unmarshal(resp.Body.Bytes(), &users)
	if len(users) != 1 || users[0].Account != "jdoe" || users[0].PermissionCount != 1 {
		t.Errorf("Unexpected users: %+v", users)
	}
}

func TestCreateSystem(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doRequest(router, "POST", "/api/systems", SystemRequest{Code: "HR", Name: "Human Resources", IsInternal: true})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var system models.System
	json.Unmarshal(resp.Body.Bytes(), &system)
	if !system.IsActive || system.CreatedBy != "admin" {
		t.Errorf("Expected active system created by admin, got %+v", system)
	}

	resp = doRequest(router, "POST", "/api/systems", SystemRequest{Code: "hr", Name: "Duplicate"})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate code, got %d", resp.Code)
	}

	resp = doRequest(router, "POST", "/api/systems", SystemRequest{Name: "No code"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing code, got %d", resp.Code)
	}
}

func TestUpdateSystem(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createSystem(t, db, "HR", "Human Resources", true)

	resp := doRequest(router, "PUT", "/api/systems/HR", SystemRequest{Name: "People", RequiresManager: true})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var system models.System
	json.Unmarshal(resp.Body.Bytes(), &system)
	if system.Name != "People" || !system.RequiresManager || system.ModifiedBy != "admin" {
		t.Errorf("Update not applied: %+v", system)
	}
}

func TestDeleteSystem(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createSystem(t, db, "HR", "Human Resources", true)

	resp := doRequest(router, "DELETE", "/api/systems/HR", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var system models.System
	db.Where("code = ?", "HR").First(&system)
	if system.IsActive {
		t.Error("Expected system to be deactivated, not deleted")
	}

	resp = doRequest(router, "DELETE", "/api/systems/HR", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", resp.Code)
	}
}

func TestCreateAndDeleteDefinition(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	createSystem(t, db, "HR", "Human Resources", true)

	resp := doRequest(router, "POST", "/api/systems/HR/security-definitions", DefinitionRequest{
		SecurityID: 10, Name: "Employee list", ResourceType: "screen",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var def models.SecurityDefinition
	json.Unmarshal(resp.Body.Bytes(), &def)
	if def.ResourceType != models.ResourceScreen {
		t.Errorf("Expected normalised resource type Screen, got %s", def.ResourceType)
	}

	resp = doRequest(router, "POST", "/api/systems/HR/security-definitions", DefinitionRequest{
		SecurityID: 11, Name: "Bad", ResourceType: "widget",
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown resource type, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", "/api/security-definitions/10", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doRequest(router, "DELETE", "/api/security-definitions/10", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for inactive definition, got %d", resp.Code)
	}
	resp = doRequest(router, "DELETE", "/api/security-definitions/abc", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-numeric id, got %d", resp.Code)
	}
}
