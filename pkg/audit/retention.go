package audit

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetentionInterval is how often RetentionWorker prunes.
const DefaultRetentionInterval = time.Hour

// RetentionWorker periodically deletes events older than its retention.
type RetentionWorker struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRetentionWorker creates a worker that keeps retention worth of events.
// A non-positive retention disables it.
func NewRetentionWorker(store *Store, retention time.Duration, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionWorker{
		store:     store,
		retention: retention,
		interval:  DefaultRetentionInterval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run prunes once immediately, then every interval until ctx is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.retention <= 0 {
		w.logger.Info("audit retention worker disabled",
			"hasStore", w.store != nil,
			"retention", w.retention.String())
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("audit retention worker started",
		"retention", w.retention.String(),
		"interval", w.interval.String())

	for {
		w.cleanup(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *RetentionWorker) cleanup(ctx context.Context) {
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.store.DeleteOlderThan(ctx, cutoff)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			w.logger.Error("audit retention cleanup failed", "error", err)
		}
	case deleted > 0:
		w.logger.Info("audit retention cleanup completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339))
	}
}
