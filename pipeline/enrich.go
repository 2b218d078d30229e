package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Names holds the resolved display names; nil means resolution failed and the
// caller should fall back to the raw id
type Names struct {
	Campaign *string
	AdGroup  *string
	Ad       *string
}

// Enricher resolves human-readable names for campaign/ad-group/ad ids.
// Strictly best-effort: it is never on the critical path for correctness.
type Enricher struct {
	API Platform
}

func NewEnricher(api Platform) *Enricher {
	return &Enricher{API: api}
}

// ResolveNames fetches up to three entity names in parallel. A failed lookup
// degrades that one name to nil; the others are unaffected.
func (e *Enricher) ResolveNames(ctx context.Context, campaignID, adGroupID, adID string) Names {
	var names Names
	var wg sync.WaitGroup

	lookup := func(entityID string, dst **string) {
		defer wg.Done()
		name, err := e.API.FetchEntityName(ctx, entityID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"entity_id": entityID,
				"error":     err.Error(),
			}).Warn("Entity name lookup failed")
			return
		}
		if name != "" {
			*dst = &name
		}
	}

	if campaignID != "" {
		wg.Add(1)
		go lookup(campaignID, &names.Campaign)
	}
	if adGroupID != "" {
		wg.Add(1)
		go lookup(adGroupID, &names.AdGroup)
	}
	if adID != "" {
		wg.Add(1)
		go lookup(adID, &names.Ad)
	}

	wg.Wait()
	return names
}

// nameOrID falls back to the raw id when the resolved name is nil
func nameOrID(name *string, id string) string {
	if name != nil {
		return *name
	}
	return id
}
