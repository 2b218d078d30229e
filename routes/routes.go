package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "leadflow/controllers"
	"leadflow/meta"
	"leadflow/middleware"
	"leadflow/pipeline"
)

// SetupRoutes wires the webhook and operator endpoints
func SetupRoutes(app *fiber.App, db *gorm.DB, client *meta.Client, processor *pipeline.Processor, scanner *pipeline.Scanner) {
	webhookLogger := log.New(os.Stdout, "WEBHOOK: ", log.Ldate|log.Ltime|log.Lshortfile)
	pipelineLogger := log.New(os.Stdout, "PIPELINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	webhookController := controller.NewWebhookController(db, processor, webhookLogger)
	pipelineController := controller.NewPipelineController(db, client, scanner, processor, pipelineLogger)

	// Webhook endpoints are called by the platform, not operators; the GET
	// handshake and the POST payload signature are their own authentication.
	webhook := app.Group("/webhook", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhook.Get("/leads", webhookController.VerifySubscription)
	webhook.Post("/leads", webhookController.ReceiveLeads)

	// Operator endpoints
	api := app.Group("/api/v1", middleware.OperatorOnly(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	pipe := api.Group("/pipeline")
	pipe.Post("/backfill", pipelineController.TriggerBackfill)
	pipe.Get("/events", pipelineController.ListEvents)
	pipe.Post("/events/:id/retry", pipelineController.RetryEvent)
	pipe.Get("/status", pipelineController.Status)

	webhookLogger.Println("Routes initialized successfully")
}
