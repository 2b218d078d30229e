package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead represents a single contact captured from the ads platform
type Lead struct {
	gorm.Model

	Name  string `gorm:"not null" json:"name"`
	Phone string `gorm:"not null;index" json:"phone"`
	Email string `gorm:"index" json:"email"`

	Source string `gorm:"default:'external-ads'" json:"source"`
	Status string `gorm:"default:'new'" json:"status"` // new, contacted, qualified, won, lost

	// Ids issued by the ads platform. ExternalLeadID is the idempotency key:
	// the unique index makes the second of two concurrent inserts for the same
	// submission fail instead of duplicating the lead.
	ExternalLeadID string `gorm:"uniqueIndex" json:"external_lead_id"`
	FormID         string `gorm:"index" json:"form_id"`
	CampaignID     string `json:"campaign_id"`
	AdGroupID      string `json:"ad_group_id"`
	AdID           string `json:"ad_id"`

	// Human-readable labels resolved best-effort; raw ids when resolution fails
	CampaignName string `json:"campaign_name"`
	AdGroupName  string `json:"ad_group_name"`
	AdName       string `json:"ad_name"`

	SubmittedAt *time.Time `json:"submitted_at"`

	// Ownership
	AssignedToID *uint `gorm:"index" json:"assigned_to_id"`
	AssignedTo   *User `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`

	// Relations
	CustomFields []LeadCustomField `gorm:"foreignKey:LeadID" json:"custom_fields,omitempty"`
	Activities   []LeadActivity    `gorm:"foreignKey:LeadID" json:"activities,omitempty"`
}

// LeadCustomField preserves form fields the normalizer could not classify
type LeadCustomField struct {
	gorm.Model
	LeadID uint   `gorm:"not null;index" json:"lead_id"`
	Name   string `gorm:"not null;index" json:"name"`
	Value  string `gorm:"type:text" json:"value"`
}

// LeadActivity tracks audit entries for a lead
type LeadActivity struct {
	gorm.Model
	LeadID uint `gorm:"not null;index" json:"lead_id"`

	ActivityType string    `gorm:"not null" json:"activity_type"` // created, updated, assigned, recovered
	ActivityAt   time.Time `gorm:"not null" json:"activity_at"`
	Details      string    `gorm:"type:text" json:"details"`
}
