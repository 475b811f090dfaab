package models

import "time"

// Employee is the directory record for an account.
// JobTitle feeds the manager-level classification used by the system visibility gate.
type Employee struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Account        string     `gorm:"uniqueIndex;not null" json:"account"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Department     string     `json:"department"`
	Position       string     `json:"position"`
	JobTitle       string     `json:"job_title"`
	EmployeeNumber string     `json:"employee_number,omitempty"`
	HireDate       *time.Time `json:"hire_date,omitempty"`
	Active         bool       `gorm:"not null" json:"active"`
}

// Credential holds a locally managed password for an account
type Credential struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Account      string    `gorm:"uniqueIndex;not null" json:"account"`
	PasswordHash string    `gorm:"not null" json:"-"`
}
