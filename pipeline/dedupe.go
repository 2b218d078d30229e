package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"leadflow/models"
)

// DupResult classifies the outcome of a duplicate check
type DupResult int

const (
	NotDuplicate DupResult = iota
	DupReference           // this external lead id was already persisted
	DupContact             // same human, different submission
)

const seenKeyTTL = 7 * 24 * time.Hour

// Deduper decides whether an incoming external lead already exists
// internally. The reference check runs first (exact, cheap, optionally served
// from the Redis cache); the contact check by phone/email runs second.
type Deduper struct {
	DB    *gorm.DB
	Cache *redis.Client // optional; nil disables the cache
}

func NewDeduper(db *gorm.DB, cache *redis.Client) *Deduper {
	return &Deduper{DB: db, Cache: cache}
}

// Check returns the duplicate classification for the contact and external
// lead id. The matched lead is returned for DupReference and DupContact so
// the caller can merge into it.
func (d *Deduper) Check(ctx context.Context, contact Contact, externalID string) (DupResult, *models.Lead, error) {
	// Reference check: re-delivery of the same push event, or re-discovery
	// by the backfill scanner.
	if d.cacheHit(ctx, externalID) {
		var lead models.Lead
		if err := d.DB.Where("external_lead_id = ?", externalID).First(&lead).Error; err == nil {
			return DupReference, &lead, nil
		}
		// Stale cache entry; fall through to the authoritative checks.
	}

	var byRef models.Lead
	err := d.DB.Where("external_lead_id = ?", externalID).First(&byRef).Error
	if err == nil {
		d.MarkSeen(ctx, externalID)
		return DupReference, &byRef, nil
	}
	if err != gorm.ErrRecordNotFound {
		return NotDuplicate, nil, fmt.Errorf("reference check: %w", err)
	}

	// Contact check: same human submitting twice through different creatives.
	// The PENDING placeholder is treated as no phone at all.
	var query *gorm.DB
	switch {
	case contact.HasPhone() && contact.Email != "":
		query = d.DB.Where("phone = ?", contact.Phone).Or("email = ?", contact.Email)
	case contact.HasPhone():
		query = d.DB.Where("phone = ?", contact.Phone)
	case contact.Email != "":
		query = d.DB.Where("email = ?", contact.Email)
	default:
		return NotDuplicate, nil, nil
	}

	var byContact models.Lead
	err = query.Order("id").First(&byContact).Error
	if err == gorm.ErrRecordNotFound {
		return NotDuplicate, nil, nil
	}
	if err != nil {
		return NotDuplicate, nil, fmt.Errorf("contact check: %w", err)
	}
	return DupContact, &byContact, nil
}

// MarkSeen records an external lead id in the cache, best-effort
func (d *Deduper) MarkSeen(ctx context.Context, externalID string) {
	if d.Cache == nil {
		return
	}
	d.Cache.Set(ctx, seenKey(externalID), 1, seenKeyTTL)
}

func (d *Deduper) cacheHit(ctx context.Context, externalID string) bool {
	if d.Cache == nil {
		return false
	}
	n, err := d.Cache.Exists(ctx, seenKey(externalID)).Result()
	// Cache errors fall through to the database check
	return err == nil && n > 0
}

func seenKey(externalID string) string {
	return "leadflow:seen:" + externalID
}
