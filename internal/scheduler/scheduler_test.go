package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/f9-o/enclave/internal/core/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestIntervalsApplyDefaults(t *testing.T) {
	var i Intervals
	i.applyDefaults()

	assert.Equal(t, DefaultCleanupInterval, i.Cleanup)
	assert.Equal(t, DefaultReportInterval, i.Report)
	assert.Equal(t, DefaultHealthInterval, i.Health)
	assert.Equal(t, DefaultStaleness, i.Staleness)
}

func TestIntervalsKeepExplicitValues(t *testing.T) {
	i := Intervals{
		Cleanup:   30 * time.Minute,
		Report:    time.Hour,
		Health:    time.Minute,
		Staleness: 12 * time.Hour,
	}
	i.applyDefaults()

	assert.Equal(t, 30*time.Minute, i.Cleanup)
	assert.Equal(t, time.Hour, i.Report)
	assert.Equal(t, time.Minute, i.Health)
	assert.Equal(t, 12*time.Hour, i.Staleness)
}

func TestRunStopsOnCancel(t *testing.T) {
	// Intervals far beyond the test lifetime: no job ever fires, Run must
	// still return promptly once the context is cancelled.
	s := New(nil, nil, nil, Intervals{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
