package feed

import (
	"context"
	"log/slog"
	"time"

	"veritag/internal/usecase"
)

// Runner executes the import on a fixed interval. It is scheduled
// independently of the verification path and shares nothing with it beyond
// the tag repository.
type Runner struct {
	Import   *usecase.ImportFeed
	Interval time.Duration
}

func (r *Runner) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	r.runOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	summary, err := r.Import.Execute(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "feed import failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "feed import finished", "imported", summary.Imported, "skipped", summary.Skipped)
}
