package database

import "testing"

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer Close(db)

	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if one != 1 {
		t.Errorf("Expected 1, got %d", one)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "whatever"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
