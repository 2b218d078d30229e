package models

import (
	"time"

	"gorm.io/gorm"
)

// Webhook event sources
const (
	EventSourceWebhook  = "webhook"
	EventSourceBackfill = "backfill"
)

// WebhookEvent is the durable record of one lead submission we heard about,
// either from a push delivery or from a backfill scan. It is created before
// any processing starts so a crash is recoverable by replaying processed=false
// rows. At most one row exists per external lead id (unique index); redelivery
// reuses the existing row.
type WebhookEvent struct {
	gorm.Model

	ExternalLeadID string `gorm:"uniqueIndex;not null" json:"external_lead_id"`
	FormID         string `gorm:"index" json:"form_id"`
	CampaignID     string `json:"campaign_id"`
	AdGroupID      string `json:"ad_group_id"`
	AdID           string `json:"ad_id"`

	Source     string    `gorm:"default:'webhook'" json:"source"` // webhook, backfill
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`

	Processed   bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	Error       string     `gorm:"type:text" json:"error"`

	// Set once processing succeeds
	LeadID *uint `gorm:"index" json:"lead_id"`
	Lead   *Lead `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}

// Notification is an in-app message for a user about a lead
type Notification struct {
	gorm.Model
	UserID uint  `gorm:"not null;index" json:"user_id"`
	LeadID *uint `gorm:"index" json:"lead_id"`

	Title  string     `gorm:"not null" json:"title"`
	Body   string     `gorm:"type:text" json:"body"`
	ReadAt *time.Time `json:"read_at"`
}
