package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"leadflow/models"
	"leadflow/pipeline"
)

// How long a failed event must sit before the sweep retries it, and how many
// are retried per sweep. Keeps a poisoned event from hogging every cycle.
const (
	retryGracePeriod = 5 * time.Minute
	retryBatchSize   = 50
)

// PipelineWorker periodically retries unprocessed webhook events and runs the
// backfill scanner on a longer cadence.
type PipelineWorker struct {
	DB            *gorm.DB
	Processor     *pipeline.Processor
	Scanner       *pipeline.Scanner
	Logger        *log.Logger
	SweepInterval time.Duration
	ScanInterval  time.Duration
	ScanLookback  time.Duration
}

func NewPipelineWorker(db *gorm.DB, processor *pipeline.Processor, scanner *pipeline.Scanner, logger *log.Logger,
	sweepInterval, scanInterval, scanLookback time.Duration) *PipelineWorker {
	return &PipelineWorker{
		DB:            db,
		Processor:     processor,
		Scanner:       scanner,
		Logger:        logger,
		SweepInterval: sweepInterval,
		ScanInterval:  scanInterval,
		ScanLookback:  scanLookback,
	}
}

func (pw *PipelineWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	select {
	case <-ctx.Done():
		return
	case <-time.After(10 * time.Second):
	}

	pw.Logger.Println("Pipeline worker started")

	sweepTicker := time.NewTicker(pw.SweepInterval)
	defer sweepTicker.Stop()
	scanTicker := time.NewTicker(pw.ScanInterval)
	defer scanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			pw.Logger.Println("Pipeline worker shutting down...")
			return
		case <-sweepTicker.C:
			pw.retryFailedEvents(ctx)
		case <-scanTicker.C:
			pw.runBackfill(ctx)
		}
	}
}

func (pw *PipelineWorker) retryFailedEvents(ctx context.Context) {
	cutoff := time.Now().Add(-retryGracePeriod)

	// Includes rows that were recorded but never attempted (crash before
	// processing), which carry no processed_at stamp
	var events []models.WebhookEvent
	err := pw.DB.Where("processed = ?", false).
		Where("COALESCE(processed_at, created_at) < ?", cutoff).
		Order("id").Limit(retryBatchSize).Find(&events).Error
	if err != nil {
		pw.Logger.Printf("Error fetching failed events: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	pw.Logger.Printf("Retrying %d failed events", len(events))
	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		if _, err := pw.Processor.Process(ctx, event.ID); err != nil {
			pw.Logger.Printf("Event %d still failing: %v", event.ID, err)
		}
	}
}

func (pw *PipelineWorker) runBackfill(ctx context.Context) {
	report, err := pw.Scanner.Scan(ctx, pw.ScanLookback)
	if err != nil {
		pw.Logger.Printf("Scheduled backfill failed: %v", err)
		return
	}
	pw.Logger.Printf("Scheduled backfill: examined=%d recovered=%d duplicates=%d errors=%d",
		report.Examined, report.Recovered, report.DuplicatesSkipped, report.Errors)
}
