package worker

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartReturnsImmediatelyWhenCancelledDuringStartup(t *testing.T) {
	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)
	pw := NewPipelineWorker(nil, nil, nil, logger, time.Minute, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		pw.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		assert.Fail(t, "worker did not shut down during startup delay")
	}
}
