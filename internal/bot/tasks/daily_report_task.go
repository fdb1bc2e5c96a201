package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/ownerscout/internal/database"
)

// newDailyReportTask creates the task that logs a per-status summary of the
// last 24 hours of processed posts. Posts still sitting at UNKNOWN are called
// out separately: those are pending records whose send attempt never
// finalized, typically after a crash or shutdown mid-send.
func newDailyReportTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_report")

	return func(ctx context.Context) error {
		since := time.Now().UTC().Add(-24 * time.Hour)

		counts, err := deps.Store.CountPostsByStatusSince(ctx, since)
		if err != nil {
			log.ErrorContext(ctx, "Daily report failed", "error", err)
			return fmt.Errorf("daily report failed: %w", err)
		}

		total := 0
		attrs := make([]any, 0, 2*len(counts)+2)
		for status, count := range counts {
			total += count
			attrs = append(attrs, string(status), count)
		}
		attrs = append(attrs, "total", total)

		log.InfoContext(ctx, "Daily outcome report", attrs...)

		if stuck := counts[database.StatusUnknown]; stuck > 0 {
			log.WarnContext(ctx, "Posts stuck in UNKNOWN need manual review", "count", stuck)
		}
		return nil
	}
}
