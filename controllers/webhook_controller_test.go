package controller

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"leadflow/config"
	"leadflow/meta"
	"leadflow/models"
	"leadflow/pipeline"
)

type stubPlatform struct {
	leads map[string]*meta.LeadDetail
}

func (s *stubPlatform) FetchLead(ctx context.Context, leadID string) (*meta.LeadDetail, error) {
	detail, ok := s.leads[leadID]
	if !ok {
		return nil, &meta.APIError{Code: 100, Message: "Unsupported get request", HTTPStatus: 400}
	}
	return detail, nil
}

func (s *stubPlatform) FetchEntityName(ctx context.Context, entityID string) (string, error) {
	return "", &meta.APIError{Code: 100, Message: "no such entity", HTTPStatus: 400}
}

func (s *stubPlatform) ListForms(ctx context.Context, pageID string) ([]meta.LeadForm, error) {
	return nil, nil
}

func (s *stubPlatform) ListLeads(ctx context.Context, formID string, since time.Time, fn func(meta.LeadDetail) error) error {
	return nil
}

func newWebhookTestApp(t *testing.T, platform pipeline.Platform) (*fiber.App, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)
	processor := pipeline.NewProcessor(db, platform, pipeline.NewDeduper(db, nil), logger)
	wc := NewWebhookController(db, processor, logger)

	app := fiber.New()
	app.Get("/webhook/leads", wc.VerifySubscription)
	app.Post("/webhook/leads", wc.ReceiveLeads)
	return app, db
}

func leadgenPayload(leadgenID string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "page",
		"entry": [{
			"id": "PAGE1",
			"time": 1756700000,
			"changes": [{
				"field": "leadgen",
				"value": {
					"leadgen_id": %q,
					"form_id": "F1",
					"ad_id": "AD1",
					"adgroup_id": "AG1",
					"campaign_id": "C1",
					"page_id": "PAGE1",
					"created_time": 1756700000
				}
			}]
		}]
	}`, leadgenID))
}

func TestVerifySubscriptionEchoesChallenge(t *testing.T) {
	config.AppConfig.Meta.VerifyToken = "verify-secret"
	app, _ := newWebhookTestApp(t, &stubPlatform{})

	req := httptest.NewRequest("GET",
		"/webhook/leads?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=1158201444", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "1158201444", string(body))
}

func TestVerifySubscriptionRejectsBadToken(t *testing.T) {
	config.AppConfig.Meta.VerifyToken = "verify-secret"
	app, _ := newWebhookTestApp(t, &stubPlatform{})

	req := httptest.NewRequest("GET",
		"/webhook/leads?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1158201444", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestReceiveLeadsRecordsEventAndCreatesLead(t *testing.T) {
	config.AppConfig.Meta.AppSecret = ""
	platform := &stubPlatform{leads: map[string]*meta.LeadDetail{
		"LG123": {
			ID:     "LG123",
			FormID: "F1",
			Fields: []meta.FieldData{
				{Name: "full_name", Values: []string{"Jane Doe"}},
				{Name: "phone_number", Values: []string{"9876543210"}},
			},
		},
	}}
	app, db := newWebhookTestApp(t, platform)

	req := httptest.NewRequest("POST", "/webhook/leads", bytes.NewReader(leadgenPayload("LG123")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var event models.WebhookEvent
	require.NoError(t, db.Where("external_lead_id = ?", "LG123").First(&event).Error)
	assert.True(t, event.Processed)
	assert.Equal(t, models.EventSourceWebhook, event.Source)
	require.NotNil(t, event.LeadID)

	var lead models.Lead
	require.NoError(t, db.First(&lead, *event.LeadID).Error)
	assert.Equal(t, "Jane Doe", lead.Name)
	assert.Equal(t, "9876543210", lead.Phone)
}

func TestReceiveLeadsRecordsEventEvenWhenProcessingFails(t *testing.T) {
	config.AppConfig.Meta.AppSecret = ""
	// Platform has no detail for this lead, so processing fails
	app, db := newWebhookTestApp(t, &stubPlatform{leads: map[string]*meta.LeadDetail{}})

	req := httptest.NewRequest("POST", "/webhook/leads", bytes.NewReader(leadgenPayload("LG999")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var event models.WebhookEvent
	require.NoError(t, db.Where("external_lead_id = ?", "LG999").First(&event).Error)
	assert.False(t, event.Processed)
	assert.NotEmpty(t, event.Error)
}

func TestReceiveLeadsVerifiesPayloadSignature(t *testing.T) {
	config.AppConfig.Meta.AppSecret = "app-secret"
	defer func() { config.AppConfig.Meta.AppSecret = "" }()

	app, db := newWebhookTestApp(t, &stubPlatform{})
	payload := leadgenPayload("LG123")

	// Missing signature
	req := httptest.NewRequest("POST", "/webhook/leads", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// Wrong signature
	req = httptest.NewRequest("POST", "/webhook/leads", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// No events were recorded for rejected deliveries
	var events int64
	db.Model(&models.WebhookEvent{}).Count(&events)
	assert.EqualValues(t, 0, events)

	// Correct signature is accepted
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(payload)
	req = httptest.NewRequest("POST", "/webhook/leads", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
