package pipeline

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"leadflow/models"
)

// EventRef carries the identifiers a webhook delivery (or a backfill
// discovery) knows about one submission before the detail fetch.
type EventRef struct {
	ExternalLeadID string
	FormID         string
	CampaignID     string
	AdGroupID      string
	AdID           string
	Source         string // models.EventSourceWebhook or models.EventSourceBackfill
}

// FindOrCreateEvent records the durable WebhookEvent for a reference before
// any processing begins. Redelivery of an already-known reference returns the
// existing row; the unique index on external_lead_id resolves the race when
// two deliveries arrive at once.
func FindOrCreateEvent(db *gorm.DB, ref EventRef) (*models.WebhookEvent, error) {
	if ref.ExternalLeadID == "" {
		return nil, fmt.Errorf("external lead id is required")
	}

	var event models.WebhookEvent
	err := db.Where("external_lead_id = ?", ref.ExternalLeadID).First(&event).Error
	if err == nil {
		return &event, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load webhook event: %w", err)
	}

	event = models.WebhookEvent{
		ExternalLeadID: ref.ExternalLeadID,
		FormID:         ref.FormID,
		CampaignID:     ref.CampaignID,
		AdGroupID:      ref.AdGroupID,
		AdID:           ref.AdID,
		Source:         ref.Source,
		ReceivedAt:     time.Now(),
	}
	if err := db.Create(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race to a concurrent delivery; use its row
			if err := db.Where("external_lead_id = ?", ref.ExternalLeadID).First(&event).Error; err != nil {
				return nil, fmt.Errorf("reload webhook event: %w", err)
			}
			return &event, nil
		}
		return nil, fmt.Errorf("create webhook event: %w", err)
	}
	return &event, nil
}
