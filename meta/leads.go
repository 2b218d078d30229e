package meta

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// FieldData is one raw form field as the platform returns it
type FieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// LeadDetail is the full record for one form submission
type LeadDetail struct {
	ID          string      `json:"id"`
	CreatedTime time.Time   `json:"created_time"`
	FormID      string      `json:"form_id"`
	AdID        string      `json:"ad_id"`
	AdGroupID   string      `json:"adset_id"`
	CampaignID  string      `json:"campaign_id"`
	Fields      []FieldData `json:"field_data"`
}

// LeadForm is one lead-capture form attached to the connected page
type LeadForm struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TokenInfo is the result of validating the configured credential
type TokenInfo struct {
	Valid     bool
	ExpiresAt time.Time
	Scopes    []string
}

type paging struct {
	Next    string `json:"next"`
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
}

// FetchLead retrieves the full detail for one external lead id
func (c *Client) FetchLead(ctx context.Context, leadID string) (*LeadDetail, error) {
	q := url.Values{}
	q.Set("fields", "id,created_time,field_data,form_id,ad_id,adset_id,campaign_id")

	var detail LeadDetail
	if err := c.Get(ctx, leadID, q, &detail); err != nil {
		return nil, fmt.Errorf("fetch lead %s: %w", leadID, err)
	}
	return &detail, nil
}

// FetchEntityName resolves the display name for a campaign/ad-set/ad id
func (c *Client) FetchEntityName(ctx context.Context, entityID string) (string, error) {
	q := url.Values{}
	q.Set("fields", "name")

	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.Get(ctx, entityID, q, &out); err != nil {
		return "", fmt.Errorf("fetch name for %s: %w", entityID, err)
	}
	return out.Name, nil
}

// ListForms returns every lead-capture form on the page, following pagination
func (c *Client) ListForms(ctx context.Context, pageID string) ([]LeadForm, error) {
	var forms []LeadForm
	after := ""

	for {
		q := url.Values{}
		q.Set("fields", "id,name,status")
		q.Set("limit", "100")
		if after != "" {
			q.Set("after", after)
		}

		var page struct {
			Data   []LeadForm `json:"data"`
			Paging paging     `json:"paging"`
		}
		if err := c.Get(ctx, pageID+"/leadgen_forms", q, &page); err != nil {
			return nil, fmt.Errorf("list forms for page %s: %w", pageID, err)
		}
		forms = append(forms, page.Data...)

		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			break
		}
		after = page.Paging.Cursors.After
	}
	return forms, nil
}

// ListLeads walks all leads on a form created at or after since, invoking fn
// for each. Iteration stops on the first fn error.
func (c *Client) ListLeads(ctx context.Context, formID string, since time.Time, fn func(LeadDetail) error) error {
	after := ""

	for {
		q := url.Values{}
		q.Set("fields", "id,created_time,field_data,form_id,ad_id,adset_id,campaign_id")
		q.Set("limit", "100")
		if !since.IsZero() {
			q.Set("filtering", fmt.Sprintf(
				`[{"field":"time_created","operator":"GREATER_THAN","value":%d}]`, since.Unix()))
		}
		if after != "" {
			q.Set("after", after)
		}

		var page struct {
			Data   []LeadDetail `json:"data"`
			Paging paging       `json:"paging"`
		}
		if err := c.Get(ctx, formID+"/leads", q, &page); err != nil {
			return fmt.Errorf("list leads for form %s: %w", formID, err)
		}

		for _, lead := range page.Data {
			if err := fn(lead); err != nil {
				return err
			}
		}

		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			return nil
		}
		after = page.Paging.Cursors.After
	}
}

// DebugToken validates the configured credential and reports its expiry
func (c *Client) DebugToken(ctx context.Context) (*TokenInfo, error) {
	q := url.Values{}
	q.Set("input_token", c.AccessToken)

	var out struct {
		Data struct {
			IsValid   bool     `json:"is_valid"`
			ExpiresAt int64    `json:"expires_at"`
			Scopes    []string `json:"scopes"`
		} `json:"data"`
	}
	if err := c.Get(ctx, "debug_token", q, &out); err != nil {
		return nil, fmt.Errorf("debug token: %w", err)
	}

	info := &TokenInfo{Valid: out.Data.IsValid, Scopes: out.Data.Scopes}
	if out.Data.ExpiresAt > 0 {
		info.ExpiresAt = time.Unix(out.Data.ExpiresAt, 0)
	}
	return info, nil
}

// SubscriptionStatus reports whether the app is subscribed to the page's
// leadgen webhook field
func (c *Client) SubscriptionStatus(ctx context.Context, pageID string) (bool, error) {
	var out struct {
		Data []struct {
			SubscribedFields []string `json:"subscribed_fields"`
		} `json:"data"`
	}
	if err := c.Get(ctx, pageID+"/subscribed_apps", nil, &out); err != nil {
		return false, fmt.Errorf("subscription status for page %s: %w", pageID, err)
	}

	for _, app := range out.Data {
		for _, field := range app.SubscribedFields {
			if field == "leadgen" {
				return true, nil
			}
		}
	}
	return false, nil
}
