package export

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// RetryWorker re-drives bookings whose export has not landed yet.
type RetryWorker struct {
	repo     bookings.Repository
	exporter Exporter
	logger   *logging.Logger
	interval time.Duration
}

// NewRetryWorker creates a retry worker.
func NewRetryWorker(repo bookings.Repository, exporter Exporter, logger *logging.Logger) *RetryWorker {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryWorker{
		repo:     repo,
		exporter: exporter,
		logger:   logger,
		interval: 5 * time.Minute,
	}
}

// WithInterval overrides the polling interval.
func (w *RetryWorker) WithInterval(d time.Duration) *RetryWorker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Run polls until the context is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *RetryWorker) drain(ctx context.Context) {
	if _, err := w.ProcessPending(ctx); err != nil {
		w.logger.Error("export worker: drain failed", "error", err)
	}
}

// ProcessPending exports every unexported booking once. Failures stay
// pending for the next tick.
func (w *RetryWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.repo.ListUnexported(ctx)
	if err != nil {
		return 0, fmt.Errorf("export worker: list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.Info("export worker: processing pending bookings", "count", len(pending))

	exported := 0
	for _, b := range pending {
		if err := w.exporter.Export(ctx, b); err != nil {
			w.logger.Error("export worker: export failed", "booking_id", b.ID, "error", err)
			continue
		}
		if err := w.repo.MarkExported(ctx, b.ID); err != nil {
			w.logger.Error("export worker: mark exported failed", "booking_id", b.ID, "error", err)
			continue
		}
		exported++
	}
	return exported, nil
}
