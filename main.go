package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"

	"leadflow/config"
	"leadflow/meta"
	"leadflow/middleware"
	"leadflow/pipeline"
	"leadflow/routes"
	"leadflow/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "LEADFLOW: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Sentry if configured
	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Optional Redis cache for the dedup reference check
	var cache *redis.Client
	if config.AppConfig.Redis.Enabled {
		cache = redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
	}

	// Platform client and pipeline
	client := meta.NewClient(config.AppConfig.Meta)
	deduper := pipeline.NewDeduper(config.DB, cache)
	processor := pipeline.NewProcessor(config.DB, client, deduper, log.New(os.Stdout, "PROCESSOR: ", log.LstdFlags))
	scanner := pipeline.NewScanner(config.DB, client, processor, config.AppConfig.Meta.PageID, log.New(os.Stdout, "BACKFILL: ", log.LstdFlags))

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Start the retry/backfill worker
	pipelineWorker := worker.NewPipelineWorker(
		config.DB, processor, scanner,
		log.New(os.Stdout, "WORKER: ", log.LstdFlags),
		time.Duration(config.AppConfig.RetrySweepMinutes)*time.Minute,
		time.Duration(config.AppConfig.BackfillEveryHours)*time.Hour,
		time.Duration(config.AppConfig.BackfillLookbackHrs)*time.Hour,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipelineWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, client, processor, scanner)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
