package pipeline

import (
	"context"
	"time"

	"leadflow/meta"
)

// Platform is the slice of the ads-platform API the pipeline consumes.
// *meta.Client satisfies it; tests substitute stubs.
type Platform interface {
	FetchLead(ctx context.Context, leadID string) (*meta.LeadDetail, error)
	FetchEntityName(ctx context.Context, entityID string) (string, error)
	ListForms(ctx context.Context, pageID string) ([]meta.LeadForm, error)
	ListLeads(ctx context.Context, formID string, since time.Time, fn func(meta.LeadDetail) error) error
}
