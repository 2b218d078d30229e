package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadflow/meta"
	"leadflow/models"
	"leadflow/utils"
)

// ErrPhoneRequired fails an event whose normalized fields carry no usable
// phone. No lead is created for such submissions.
var ErrPhoneRequired = errors.New("lead phone is required")

// Processor turns one recorded WebhookEvent into exactly one internal lead:
// fetch detail, normalize, dedupe, assign, persist, notify. Process is
// idempotent per event and per external lead reference; every failure is
// stamped onto the event before it propagates.
type Processor struct {
	DB       *gorm.DB
	API      Platform
	Deduper  *Deduper
	Enricher *Enricher
	Logger   *log.Logger
}

func NewProcessor(db *gorm.DB, api Platform, deduper *Deduper, logger *log.Logger) *Processor {
	return &Processor{
		DB:       db,
		API:      api,
		Deduper:  deduper,
		Enricher: NewEnricher(api),
		Logger:   logger,
	}
}

// Process handles the event with the given id and returns the resulting
// lead. Already-processed events return their linked lead with no side
// effects.
func (p *Processor) Process(ctx context.Context, eventID uint) (*models.Lead, error) {
	var event models.WebhookEvent
	if err := p.DB.First(&event, eventID).Error; err != nil {
		return nil, fmt.Errorf("load webhook event %d: %w", eventID, err)
	}

	// Idempotency guard: redelivery of a processed event is a no-op
	if event.Processed {
		return p.linkedLead(&event), nil
	}

	lead, err := p.process(ctx, &event)
	if err != nil {
		p.failEvent(&event, err)
		return nil, err
	}
	return lead, nil
}

func (p *Processor) process(ctx context.Context, event *models.WebhookEvent) (*models.Lead, error) {
	detail, err := p.API.FetchLead(ctx, event.ExternalLeadID)
	if err != nil {
		return nil, fmt.Errorf("fetch lead detail: %w", err)
	}

	contact := Normalize(detail.Fields)
	if !contact.HasPhone() {
		return nil, ErrPhoneRequired
	}
	if contact.Name == "" {
		contact.Name = syntheticName(event.ExternalLeadID)
	}

	result, matched, err := p.Deduper.Check(ctx, contact, event.ExternalLeadID)
	if err != nil {
		return nil, err
	}

	switch result {
	case DupReference:
		// Same submission already persisted; just close the event
		if err := p.completeEvent(event, matched); err != nil {
			return nil, err
		}
		return matched, nil

	case DupContact:
		// Same human, new submission: merge, never duplicate. No owner
		// reassignment and no notification on the merge path.
		if err := p.mergeLead(matched, contact, event); err != nil {
			return nil, err
		}
		if err := p.completeEvent(event, matched); err != nil {
			return nil, err
		}
		return matched, nil
	}

	lead, err := p.createLead(ctx, contact, detail, event)
	if err != nil {
		return nil, err
	}
	if err := p.completeEvent(event, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

func (p *Processor) createLead(ctx context.Context, contact Contact, detail *meta.LeadDetail, event *models.WebhookEvent) (*models.Lead, error) {
	names := p.Enricher.ResolveNames(ctx, detail.CampaignID, detail.AdGroupID, detail.AdID)

	owner, err := NextOwner(p.DB)
	if err != nil {
		return nil, err
	}

	lead := models.Lead{
		Name:           contact.Name,
		Phone:          contact.Phone,
		Email:          contact.Email,
		Source:         "external-ads",
		Status:         "new",
		ExternalLeadID: event.ExternalLeadID,
		FormID:         detail.FormID,
		CampaignID:     detail.CampaignID,
		AdGroupID:      detail.AdGroupID,
		AdID:           detail.AdID,
		CampaignName:   nameOrID(names.Campaign, detail.CampaignID),
		AdGroupName:    nameOrID(names.AdGroup, detail.AdGroupID),
		AdName:         nameOrID(names.Ad, detail.AdID),
		CustomFields:   customFields(contact.Custom),
	}
	if !detail.CreatedTime.IsZero() {
		lead.SubmittedAt = utils.Pointer(detail.CreatedTime)
	}
	if owner != nil {
		lead.AssignedToID = utils.Pointer(owner.ID)
	}

	if err := p.DB.Create(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent processor won the insert; treat as a duplicate
			var existing models.Lead
			if ferr := p.DB.Where("external_lead_id = ?", event.ExternalLeadID).First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("persist lead: %w", err)
	}

	p.Deduper.MarkSeen(ctx, event.ExternalLeadID)
	p.recordActivity(lead.ID, "created", fmt.Sprintf("ingested from %s (form %s)", event.Source, detail.FormID))
	p.notifyTriage(&lead)

	utils.LogEvent("lead_created", map[string]interface{}{
		"lead_id":     lead.ID,
		"external_id": event.ExternalLeadID,
		"form_id":     detail.FormID,
		"assigned_to": lead.AssignedToID,
	})
	return &lead, nil
}

// mergeLead updates an existing lead matched by contact fields. Minor fields
// are last-write-wins; ownership and status are never touched here.
func (p *Processor) mergeLead(lead *models.Lead, contact Contact, event *models.WebhookEvent) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if lead.Email == "" && contact.Email != "" {
		updates["email"] = contact.Email
		lead.Email = contact.Email
	}

	if err := p.DB.Model(lead).Updates(updates).Error; err != nil {
		return fmt.Errorf("merge lead %d: %w", lead.ID, err)
	}

	// Carry over custom fields the lead does not have yet
	var existing []models.LeadCustomField
	if err := p.DB.Where("lead_id = ?", lead.ID).Find(&existing).Error; err != nil {
		return fmt.Errorf("load custom fields: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, f := range existing {
		known[f.Name] = true
	}
	for name, value := range contact.Custom {
		if known[name] {
			continue
		}
		field := models.LeadCustomField{LeadID: lead.ID, Name: name, Value: value}
		if err := p.DB.Create(&field).Error; err != nil {
			return fmt.Errorf("merge custom field %q: %w", name, err)
		}
	}

	p.recordActivity(lead.ID, "updated", fmt.Sprintf("repeat submission %s via %s", event.ExternalLeadID, event.Source))
	return nil
}

// completeEvent marks the event processed and links the lead
func (p *Processor) completeEvent(event *models.WebhookEvent, lead *models.Lead) error {
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": time.Now(),
		"error":        "",
	}
	if lead != nil {
		updates["lead_id"] = lead.ID
	}
	if err := p.DB.Model(event).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark event %d processed: %w", event.ID, err)
	}
	return nil
}

// failEvent stamps the failure onto the event so it is never lost. The event
// stays processed=false and is eligible for the retry sweep and backfill.
func (p *Processor) failEvent(event *models.WebhookEvent, cause error) {
	updates := map[string]interface{}{
		"error":        cause.Error(),
		"processed_at": time.Now(),
	}
	if err := p.DB.Model(event).Updates(updates).Error; err != nil {
		p.Logger.Printf("Failed to stamp error on event %d: %v", event.ID, err)
	}

	utils.LogError("lead_processing_failed", cause, map[string]interface{}{
		"event_id":    event.ID,
		"external_id": event.ExternalLeadID,
		"source":      event.Source,
	})
}

func (p *Processor) notifyTriage(lead *models.Lead) {
	var users []models.User
	if err := p.DB.Where("role = ? AND is_active = ?", models.RoleTriage, true).Find(&users).Error; err != nil {
		p.Logger.Printf("Failed to list triage users: %v", err)
		return
	}
	for _, user := range users {
		notification := models.Notification{
			UserID: user.ID,
			LeadID: utils.Pointer(lead.ID),
			Title:  "New lead received",
			Body:   fmt.Sprintf("%s (%s) via %s", lead.Name, lead.Phone, lead.CampaignName),
		}
		if err := p.DB.Create(&notification).Error; err != nil {
			p.Logger.Printf("Failed to notify user %d: %v", user.ID, err)
		}
	}
}

func (p *Processor) recordActivity(leadID uint, activityType, details string) {
	activity := models.LeadActivity{
		LeadID:       leadID,
		ActivityType: activityType,
		ActivityAt:   time.Now(),
		Details:      details,
	}
	if err := p.DB.Create(&activity).Error; err != nil {
		p.Logger.Printf("Failed to record %s activity for lead %d: %v", activityType, leadID, err)
	}
}

func (p *Processor) linkedLead(event *models.WebhookEvent) *models.Lead {
	if event.LeadID == nil {
		return nil
	}
	var lead models.Lead
	if err := p.DB.First(&lead, *event.LeadID).Error; err != nil {
		return nil
	}
	return &lead
}

// syntheticName labels a submission that arrived without any name field
func syntheticName(externalID string) string {
	suffix := externalID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "Ad Lead " + suffix
}

func customFields(custom map[string]string) []models.LeadCustomField {
	var result []models.LeadCustomField
	for name, value := range custom {
		result = append(result, models.LeadCustomField{Name: name, Value: value})
	}
	return result
}
