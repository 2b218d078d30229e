package models

import (
	"gorm.io/gorm"
)

// User roles
const (
	RoleAgent  = "agent"  // eligible for round-robin lead assignment
	RoleTriage = "triage" // notified when a new lead is created
	RoleAdmin  = "admin"
)

// User represents an internal user account. This subsystem only reads users:
// the user directory itself is managed elsewhere.
type User struct {
	gorm.Model

	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`

	Role     string `gorm:"default:'agent';index" json:"role"` // agent, triage, admin
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Relations
	AssignedLeads []Lead         `gorm:"foreignKey:AssignedToID" json:"assigned_leads,omitempty"`
	Notifications []Notification `gorm:"foreignKey:UserID" json:"notifications,omitempty"`
}
