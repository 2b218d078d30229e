package controller

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadflow/config"
	"leadflow/meta"
	"leadflow/models"
	"leadflow/pipeline"
	"leadflow/utils"
)

// PipelineController exposes the operator surface: backfill triggers, event
// inspection/retry, and the diagnostic status report.
type PipelineController struct {
	DB        *gorm.DB
	Client    *meta.Client
	Scanner   *pipeline.Scanner
	Processor *pipeline.Processor
	Logger    *log.Logger
}

func NewPipelineController(db *gorm.DB, client *meta.Client, scanner *pipeline.Scanner, processor *pipeline.Processor, logger *log.Logger) *PipelineController {
	return &PipelineController{
		DB:        db,
		Client:    client,
		Scanner:   scanner,
		Processor: processor,
		Logger:    logger,
	}
}

// TriggerBackfill runs the recovery scanner over a lookback window. With a
// phone list it runs the targeted variant instead.
func (pc *PipelineController) TriggerBackfill(c *fiber.Ctx) error {
	var input struct {
		LookbackHours int      `json:"lookback_hours" validate:"omitempty,min=1,max=2160"`
		Phones        []string `json:"phones" validate:"omitempty,max=100"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.LookbackHours == 0 {
		input.LookbackHours = config.AppConfig.BackfillLookbackHrs
	}
	lookback := time.Duration(input.LookbackHours) * time.Hour

	var report pipeline.Report
	var err error
	if len(input.Phones) > 0 {
		report, err = pc.Scanner.RecoverPhones(c.Context(), lookback, input.Phones)
	} else {
		report, err = pc.Scanner.Scan(c.Context(), lookback)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Backfill scan failed", err)
	}

	return c.JSON(utils.SuccessResponse(report))
}

// RetryEvent re-runs processing for one event
func (pc *PipelineController) RetryEvent(c *fiber.Ctx) error {
	eventID := utils.ParseUint(c.Params("id"))
	if eventID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid event ID", nil)
	}

	var event models.WebhookEvent
	if err := pc.DB.First(&event, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Event not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch event", err)
	}

	lead, err := pc.Processor.Process(c.Context(), event.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Event processing failed", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"event_id": event.ID,
		"lead":     lead,
	}))
}

// ListEvents returns paginated webhook events with processed/errored filters
func (pc *PipelineController) ListEvents(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := pc.DB.Model(&models.WebhookEvent{})
	if processed := c.Query("processed"); processed != "" {
		query = query.Where("processed = ?", processed == "true")
	}
	if errored := c.Query("errored"); errored == "true" {
		query = query.Where("error <> ''")
	}

	var total int64
	query.Count(&total)

	var events []models.WebhookEvent
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&events).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch events", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  events,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Status reports whether the pipeline can silently fail: configuration
// presence, credential validity/expiry, webhook subscription state, and the
// age of the freshest lead.
func (pc *PipelineController) Status(c *fiber.Ctx) error {
	cfg := config.AppConfig.Meta
	status := fiber.Map{
		"config": fiber.Map{
			"access_token_set": cfg.AccessToken != "",
			"verify_token_set": cfg.VerifyToken != "",
			"app_secret_set":   cfg.AppSecret != "",
			"page_id_set":      cfg.PageID != "",
		},
	}

	if info, err := pc.Client.DebugToken(c.Context()); err != nil {
		status["credential"] = fiber.Map{"error": err.Error()}
	} else {
		credential := fiber.Map{"valid": info.Valid}
		if !info.ExpiresAt.IsZero() {
			credential["expires_at"] = info.ExpiresAt
			credential["expires_in"] = utils.FormatDuration(time.Until(info.ExpiresAt))
		}
		status["credential"] = credential
	}

	if subscribed, err := pc.Client.SubscriptionStatus(c.Context(), cfg.PageID); err != nil {
		status["subscription"] = fiber.Map{"error": err.Error()}
	} else {
		status["subscription"] = fiber.Map{"leadgen_subscribed": subscribed}
	}

	var latest models.Lead
	err := pc.DB.Where("source = ?", "external-ads").Order("created_at DESC").First(&latest).Error
	switch err {
	case nil:
		status["last_lead"] = fiber.Map{
			"created_at": latest.CreatedAt,
			"age":        utils.FormatDuration(time.Since(latest.CreatedAt)),
		}
	case gorm.ErrRecordNotFound:
		status["last_lead"] = nil
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check lead freshness", err)
	}

	var pendingEvents int64
	pc.DB.Model(&models.WebhookEvent{}).Where("processed = ?", false).Count(&pendingEvents)
	status["pending_events"] = pendingEvents

	return c.JSON(utils.SuccessResponse(status))
}
