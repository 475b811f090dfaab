package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mikepea/empaccess/pkg/empaccess/identity"
	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every connection to ":memory:" is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// fixture is a small catalog:
//
//	HR  (Human Resources)           10 Screen, 20 Button, 30 Controller, 60 inactive
//	FIN (Finance, manager only)     40 Screen, 41 Button
//	OLD (inactive system)           50
//	global                          70
type fixture struct {
	db  *gorm.DB
	hr  models.System
	fin models.System
	old models.System
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{db: db}

	f.hr = models.System{Code: "HR", Name: "Human Resources", IsActive: true, IsInternal: true}
	f.fin = models.System{Code: "FIN", Name: "Finance", IsActive: true, RequiresManager: true}
	f.old = models.System{Code: "OLD", Name: "Legacy", IsActive: false}
	for _, s := range []*models.System{&f.hr, &f.fin, &f.old} {
		require.NoError(t, db.Create(s).Error)
	}

	defs := []models.SecurityDefinition{
		{SecurityID: 10, SystemID: &f.hr.ID, Name: "Employee list", ResourceType: models.ResourceScreen, Category: "Main", SortOrder: 1, IsActive: true},
		{SecurityID: 20, SystemID: &f.hr.ID, Name: "Approve leave", ResourceType: models.ResourceButton, Category: "Main", SortOrder: 2, IsActive: true},
		{SecurityID: 30, SystemID: &f.hr.ID, Name: "Leave API", ResourceType: models.ResourceController, Category: "Api", SortOrder: 1, IsActive: true},
		{SecurityID: 60, SystemID: &f.hr.ID, Name: "Retired screen", ResourceType: models.ResourceScreen, Category: "Main", SortOrder: 9, IsActive: false},
		{SecurityID: 40, SystemID: &f.fin.ID, Name: "Ledger", ResourceType: models.ResourceScreen, Category: "Main", SortOrder: 1, IsActive: true},
		{SecurityID: 41, SystemID: &f.fin.ID, Name: "Post journal", ResourceType: models.ResourceButton, Category: "Main", SortOrder: 2, IsActive: true},
		{SecurityID: 50, SystemID: &f.old.ID, Name: "Old report", ResourceType: models.ResourceScreen, IsActive: true},
		{SecurityID: 70, Name: "Portal home", ResourceType: models.ResourceScreen, IsActive: true},
	}
	for i := range defs {
		require.NoError(t, db.Create(&defs[i]).Error)
	}
	return f
}

func (f *fixture) group(t *testing.T, name string, active bool, securityIDs ...int) models.Group {
	t.Helper()
	g := models.Group{Name: name, IsActive: active}
	require.NoError(t, f.db.Create(&g).Error)
	for _, id := range securityIDs {
		require.NoError(t, f.db.Create(&models.GroupSecurityAssignment{
			GroupID: g.ID, SecurityID: id, IsActive: true, AssignedDate: testNow.Add(-time.Hour),
		}).Error)
	}
	return g
}

func (f *fixture) member(t *testing.T, account string, g models.Group) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.GroupMembership{
		Account: account, GroupID: g.ID, AssignedBy: "admin", AssignedDate: testNow.Add(-time.Hour), IsActive: true,
	}).Error)
}

func (f *fixture) direct(t *testing.T, account string, securityID int, expiry *time.Time) models.EmployeeSecurityAssignment {
	t.Helper()
	a := models.EmployeeSecurityAssignment{
		Account: account, SecurityID: securityID, IsActive: true, ExpiryDate: expiry,
		AssignedBy: "admin", AssignedDate: testNow.Add(-time.Minute),
	}
	require.NoError(t, f.db.Create(&a).Error)
	return a
}

func (f *fixture) employee(t *testing.T, account, jobTitle string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Employee{
		Account: account, Name: account, JobTitle: jobTitle, Active: true,
	}).Error)
}

func (f *fixture) engine() *Engine {
	return NewEngine(f.db, WithClock(testClock))
}

func acct(t *testing.T, raw string) identity.Account {
	t.Helper()
	a, err := identity.ResolveAccount(raw)
	require.NoError(t, err)
	return a
}

func timePtr(t time.Time) *time.Time { return &t }

func idSet(ids ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
