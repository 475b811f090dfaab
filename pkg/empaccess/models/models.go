package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Group and System must be migrated first as other models depend on them
func AllModels() []interface{} {
	return []interface{}{
		&Group{},
		&System{},
		&SecurityDefinition{},
		&GroupMembership{},
		&GroupSecurityAssignment{},
		&EmployeeSecurityAssignment{},
		&Employee{},
		&Credential{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
