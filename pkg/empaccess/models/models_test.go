package models

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := setupTestDB(t)

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}

	tables := []string{
		"groups", "systems", "security_definitions", "group_memberships",
		"group_security_assignments", "employee_security_assignments",
		"employees", "credentials", "api_keys",
	}
	for _, table := range tables {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestUniqueConstraints(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	if err := db.Create(&System{Code: "HR", Name: "Human Resources", IsActive: true}).Error; err != nil {
		t.Fatalf("Failed to create system: %v", err)
	}
	if err := db.Create(&System{Code: "HR", Name: "Duplicate"}).Error; err == nil {
		t.Error("Expected error when creating system with duplicate code")
	}

	if err := db.Create(&SecurityDefinition{SecurityID: 7, Name: "Home", ResourceType: ResourceScreen}).Error; err != nil {
		t.Fatalf("Failed to create definition: %v", err)
	}
	if err := db.Create(&SecurityDefinition{SecurityID: 7, Name: "Again", ResourceType: ResourceScreen}).Error; err == nil {
		t.Error("Expected error when creating definition with duplicate security id")
	}

	db.Create(&Group{Name: "Staff", IsActive: true})
	if err := db.Create(&Group{Name: "Staff"}).Error; err == nil {
		t.Error("Expected error when creating group with duplicate name")
	}
}

func TestDefinitionSystemAssociation(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	hr := System{Code: "HR", Name: "Human Resources", IsActive: true}
	db.Create(&hr)
	db.Create(&SecurityDefinition{SecurityID: 10, SystemID: &hr.ID, Name: "Employee list", ResourceType: ResourceScreen, IsActive: true})
	db.Create(&SecurityDefinition{SecurityID: 11, Name: "Portal", ResourceType: ResourceScreen, IsActive: true})

	var defs []SecurityDefinition
	if err := db.Preload("System").Order("security_id").Find(&defs).Error; err != nil {
		t.Fatalf("Failed to load definitions: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("Expected 2 definitions, got %d", len(defs))
	}
	if defs[0].DisplaySecurityID() != "HR.10" || !defs[0].Usable() {
		t.Errorf("Unexpected system definition: %s usable=%v", defs[0].DisplaySecurityID(), defs[0].Usable())
	}
	if defs[1].DisplaySecurityID() != "11" || defs[1].SystemCode() != "" || !defs[1].Usable() {
		t.Errorf("Unexpected global definition: %s", defs[1].DisplaySecurityID())
	}

	db.Model(&hr).Update("is_active", false)
	var def SecurityDefinition
	db.Preload("System").First(&def, "security_id = ?", 10)
	if def.Usable() {
		t.Error("Expected definition of an inactive system to be unusable")
	}
}

func TestUsableWithoutLoadedSystem(t *testing.T) {
	id := uint(3)
	def := SecurityDefinition{SecurityID: 1, SystemID: &id, IsActive: true}
	if def.Usable() {
		t.Error("Expected dangling system reference to be unusable")
	}
}

func TestNormalizeResourceType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"screen", ResourceScreen},
		{" BUTTON ", ResourceButton},
		{"Controller", ResourceController},
		{"Widget", "Widget"},
	}
	for _, tt := range tests {
		if got := NormalizeResourceType(tt.in); got != tt.want {
			t.Errorf("NormalizeResourceType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEffectiveAt(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	tests := []struct {
		name  string
		grant EmployeeSecurityAssignment
		want  bool
	}{
		{"active without expiry", EmployeeSecurityAssignment{IsActive: true}, true},
		{"active with future expiry", EmployeeSecurityAssignment{IsActive: true, ExpiryDate: &later}, true},
		{"expiry equal to now", EmployeeSecurityAssignment{IsActive: true, ExpiryDate: &now}, false},
		{"revoked", EmployeeSecurityAssignment{IsActive: false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.grant.EffectiveAt(now); got != tt.want {
				t.Errorf("EffectiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}
