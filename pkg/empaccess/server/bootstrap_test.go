package server

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mikepea/empaccess/pkg/empaccess/access"
	"github.com/mikepea/empaccess/pkg/empaccess/auth"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

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

func TestBootstrapAdmin(t *testing.T) {
	db := setupTestDB(t)
	engine := access.NewEngine(db)
	ctx := context.Background()

	in := BootstrapAdminInput{Account: "root", Password: "s3cret", SecurityID: 1}
	for i := 0; i < 2; i++ {
		if err := BootstrapAdmin(ctx, db, engine, in); err != nil {
			t.Fatalf("Bootstrap run %d failed: %v", i, err)
		}
	}

	res, err := engine.CheckAccess(ctx, "root", 1)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !res.HasAccess || res.AssignmentSource != access.SourceGroup {
		t.Errorf("Expected group grant of the admin id, got %+v", res)
	}

	var groups, memberships int64
	db.Model(&models.Group{}).Where("name = ?", DefaultAdminGroup).Count(&groups)
	db.Model(&models.GroupMembership{}).Where("account = ? AND is_active = ?", "root", true).Count(&memberships)
	if groups != 1 || memberships != 1 {
		t.Errorf("Expected one group and one membership, got %d and %d", groups, memberships)
	}

	authn := auth.NewCredentialAuthenticator(db)
	if err := authn.Authenticate(ctx, "root", "s3cret"); err != nil {
		t.Errorf("Expected password to be set: %v", err)
	}
}

func TestBootstrapAdminReactivatesDefinition(t *testing.T) {
	db := setupTestDB(t)
	engine := access.NewEngine(db)
	ctx := context.Background()
	db.Create(&models.SecurityDefinition{SecurityID: 5, Name: "Old admin", ResourceType: models.ResourceController, IsActive: true})
	db.Model(&models.SecurityDefinition{}).Where("security_id = ?", 5).Update("is_active", false)

	err := BootstrapAdmin(ctx, db, engine, BootstrapAdminInput{Account: "root", Password: "pw", SecurityID: 5, GroupName: "Ops"})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	ok, err := engine.CheckAccess(ctx, "root", 5)
	if err != nil || !ok.HasAccess {
		t.Errorf("Expected access to reactivated id, got %+v, %v", ok, err)
	}
}

func TestBootstrapAdminValidation(t *testing.T) {
	db := setupTestDB(t)
	engine := access.NewEngine(db)

	err := BootstrapAdmin(context.Background(), db, engine, BootstrapAdminInput{Account: "root", SecurityID: 1})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing password, got %v", err)
	}
	err = BootstrapAdmin(context.Background(), db, engine, BootstrapAdminInput{Account: "root", Password: "pw"})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing security id, got %v", err)
	}
}
