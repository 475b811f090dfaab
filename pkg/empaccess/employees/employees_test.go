package employees

import (
	"bytes"
	"encoding/json"
	"fmt"
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
	handler := NewHandler(db, access.NewEngine(db), nil)

	employees := r.Group("/employees")
	employees.Use(auth.AuthMiddleware(testTokens))
	handler.RegisterRoutes(employees)
	return r
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

func strPtr(s string) *string { return &s }

func TestUpsertEmployee(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doRequest(router, "PUT", "/employees/JDoe", UpsertEmployeeRequest{
		Name:     strPtr("Jane Doe"),
		JobTitle: strPtr("Manager"),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var employee models.Employee
	json.Unmarshal(resp.Body.Bytes(), &employee)
	if employee.Account != "jdoe" || !employee.Active {
		t.Errorf("Unexpected employee: %+v", employee)
	}

	resp = doRequest(router, "PUT", "/employees/jdoe", UpsertEmployeeRequest{Department: strPtr("Finance")})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	json.Unmarshal(resp.Body.Bytes(), &employee)
	if employee.Department != "Finance" || employee.JobTitle != "Manager" {
		t.Errorf("Expected partial update to keep job title, got %+v", employee)
	}

	var count int64
	db.Model(&models.Employee{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 record, got %d", count)
	}
}

func TestListAndGetEmployees(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	db.Create(&models.Employee{Account: "jdoe", Name: "Jane Doe", Department: "HR", Active: true})
	db.Create(&models.Employee{Account: "asmith", Name: "Adam Smith", Department: "IT", Active: true})

	resp := doRequest(router, "GET", "/employees", nil)
	var list []models.Employee
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 2 || list[0].Account != "asmith" {
		t.Errorf("Expected 2 employees ordered by name, got %+v", list)
	}

	resp = doRequest(router, "GET", "/employees?q=jane", nil)
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Account != "jdoe" {
		t.Errorf("Expected search to find jdoe, got %+v", list)
	}

	resp = doRequest(router, "GET", "/employees?department=IT", nil)
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Account != "asmith" {
		t.Errorf("Expected department filter to find asmith, got %+v", list)
	}

	resp = doRequest(router, "GET", "/employees/JDOE", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
	resp = doRequest(router, "GET", "/employees/nobody", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestEmployeeGroups(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	staff := models.Group{Name: "Staff", IsActive: true}
	db.Create(&staff)
	path := fmt.Sprintf("/employees/jdoe/groups/%d", staff.ID)

	resp := doRequest(router, "POST", path, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", "/employees/jdoe/groups", nil)
	var groups []MembershipResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)
	if len(groups) != 1 || groups[0].GroupName != "Staff" || groups[0].AssignedBy != "admin" {
		t.Errorf("Unexpected memberships: %+v", groups)
	}

	resp = doRequest(router, "DELETE", path, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", "/employees/jdoe/groups", nil)
	if resp.Body.String() != "[]" {
		t.Errorf("Expected no memberships, got %s", resp.Body.String())
	}

	resp = doRequest(router, "POST", "/employees/jdoe/groups/abc", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestDirectGrants(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	db.Create(&models.SecurityDefinition{SecurityID: 10, Name: "Portal", ResourceType: models.ResourceScreen, IsActive: true})

	expiry := time.Now().Add(48 * time.Hour)
	resp := doRequest(router, "POST", "/employees/jdoe/grants", GrantRequest{SecurityID: 10, ExpiryDate: &expiry, Notes: "cover"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var grant models.EmployeeSecurityAssignment
	json.Unmarshal(resp.Body.Bytes(), &grant)
	if grant.AssignedBy != "admin" || grant.ExpiryDate == nil {
		t.Errorf("Unexpected grant: %+v", grant)
	}

	past := time.Now().Add(-time.Hour)
	resp = doRequest(router, "POST", "/employees/jdoe/grants", GrantRequest{SecurityID: 10, ExpiryDate: &past})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for past expiry, got %d", resp.Code)
	}

	resp = doRequest(router, "POST", "/employees/jdoe/grants", GrantRequest{SecurityID: 999})
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown security id, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("/employees/someoneelse/grants/%d", grant.ID), nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 revoking another account's grant, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("/employees/jdoe/grants/%d", grant.ID), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", "/employees/jdoe/grants", nil)
	var grants []models.EmployeeSecurityAssignment
	json.Unmarshal(resp.Body.Bytes(), &grants)
	if len(grants) != 1 {
		t.Fatalf("Expected revoked grant to stay on record, got %d rows", len(grants))
	}
	if grants[0].IsActive || grants[0].RevokedBy != "admin" {
		t.Errorf("Expected revoked grant, got %+v", grants[0])
	}
}
