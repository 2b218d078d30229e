package controller

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadflow/config"
	"leadflow/models"
	"leadflow/pipeline"
	"leadflow/utils"
)

// WebhookController receives lead-submission notifications from the ads
// platform and turns them into durable processing tasks.
type WebhookController struct {
	DB        *gorm.DB
	Processor *pipeline.Processor
	Logger    *log.Logger
}

func NewWebhookController(db *gorm.DB, processor *pipeline.Processor, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:        db,
		Processor: processor,
		Logger:    logger,
	}
}

// VerifySubscription answers the platform's one-time GET handshake: echo the
// challenge back when the verify token matches the configured secret.
func (wc *WebhookController) VerifySubscription(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token != config.AppConfig.Meta.VerifyToken {
		wc.Logger.Printf("Webhook verification rejected (mode=%s)", mode)
		return c.SendStatus(fiber.StatusForbidden)
	}

	return c.SendString(challenge)
}

// webhookPayload is the platform's delivery envelope
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Time    int64  `json:"time"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				LeadgenID   string `json:"leadgen_id"`
				FormID      string `json:"form_id"`
				AdID        string `json:"ad_id"`
				AdGroupID   string `json:"adgroup_id"`
				CampaignID  string `json:"campaign_id"`
				PageID      string `json:"page_id"`
				CreatedTime int64  `json:"created_time"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ReceiveLeads handles POST deliveries. Every lead reference in the payload
// gets a WebhookEvent row before processing starts, so a failure after this
// point is recoverable by the retry sweep or the backfill scanner. The
// response is always 200 once events are recorded; per-reference outcomes are
// reported in the body.
func (wc *WebhookController) ReceiveLeads(c *fiber.Ctx) error {
	body := c.Body()

	if secret := config.AppConfig.Meta.AppSecret; secret != "" {
		if !verifySignature(body, c.Get("X-Hub-Signature-256"), secret) {
			wc.Logger.Printf("Webhook delivery rejected: bad payload signature")
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Invalid payload signature", nil)
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	type outcome struct {
		LeadgenID string `json:"leadgen_id"`
		Status    string `json:"status"` // processed, duplicate, failed, recorded
		Error     string `json:"error,omitempty"`
		LeadID    *uint  `json:"lead_id,omitempty"`
	}
	var outcomes []outcome

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" || change.Value.LeadgenID == "" {
				continue
			}

			event, err := pipeline.FindOrCreateEvent(wc.DB, pipeline.EventRef{
				ExternalLeadID: change.Value.LeadgenID,
				FormID:         change.Value.FormID,
				CampaignID:     change.Value.CampaignID,
				AdGroupID:      change.Value.AdGroupID,
				AdID:           change.Value.AdID,
				Source:         models.EventSourceWebhook,
			})
			if err != nil {
				wc.Logger.Printf("Failed to record event for %s: %v", change.Value.LeadgenID, err)
				outcomes = append(outcomes, outcome{
					LeadgenID: change.Value.LeadgenID,
					Status:    "failed",
					Error:     err.Error(),
				})
				continue
			}

			if event.Processed {
				outcomes = append(outcomes, outcome{
					LeadgenID: change.Value.LeadgenID,
					Status:    "duplicate",
					LeadID:    event.LeadID,
				})
				continue
			}

			lead, err := wc.Processor.Process(c.Context(), event.ID)
			if err != nil {
				outcomes = append(outcomes, outcome{
					LeadgenID: change.Value.LeadgenID,
					Status:    "failed",
					Error:     err.Error(),
				})
				continue
			}

			result := outcome{LeadgenID: change.Value.LeadgenID, Status: "processed"}
			if lead != nil {
				result.LeadID = utils.Pointer(lead.ID)
			}
			outcomes = append(outcomes, result)
		}
	}

	return c.JSON(fiber.Map{
		"received_at": time.Now(),
		"results":     outcomes,
	})
}

// verifySignature checks the platform's HMAC-SHA256 payload signature
func verifySignature(body []byte, header, secret string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	signature := strings.TrimPrefix(header, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
