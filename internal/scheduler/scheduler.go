// Package scheduler runs sync passes repeatedly, one at a time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pass is one unit of scheduled work. Errors are logged, not fatal.
type Pass func(ctx context.Context) error

// Every runs pass immediately and then every interval until ctx is done.
// A slow pass delays the next tick instead of overlapping it.
func Every(ctx context.Context, logger *slog.Logger, interval time.Duration, pass Pass) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	logger.Info("Starting watcher.", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := pass(ctx); err != nil {
			logger.Error("Sync cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("Watcher stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

// Cron runs pass on a standard five-field cron schedule until ctx is done.
// A run that would start while the previous one is still going is skipped.
func Cron(ctx context.Context, logger *slog.Logger, spec string, loc *time.Location, pass Pass) error {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(spec, func() {
		if err := pass(ctx); err != nil {
			logger.Error("Sync cycle failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("Scheduler started.", "schedule", spec, "tz", loc.String())

	<-ctx.Done()
	// Stop waits for a running pass to finish.
	<-c.Stop().Done()
	logger.Info("Scheduler stopped.")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
