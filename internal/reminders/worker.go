package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/notify"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// reminderSender delivers one reminder message.
type reminderSender interface {
	SendReminder(ctx context.Context, b bookings.Booking, offset time.Duration) error
}

var _ reminderSender = (*notify.Service)(nil)

// Worker polls for due reminder events and sends them.
type Worker struct {
	store    Store
	repo     bookings.Repository
	sender   reminderSender
	logger   *logging.Logger
	interval time.Duration
	now      func() time.Time
}

// NewWorker creates a reminder worker.
func NewWorker(store Store, repo bookings.Repository, sender reminderSender, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		store:    store,
		repo:     repo,
		sender:   sender,
		logger:   logger,
		interval: time.Minute,
		now:      time.Now,
	}
}

// WithInterval overrides the polling interval.
func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// WithClock overrides the time source for tests.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	if now != nil {
		w.now = now
	}
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
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

func (w *Worker) drain(ctx context.Context) {
	if _, err := w.ProcessDue(ctx); err != nil {
		w.logger.Error("reminder worker: drain failed", "error", err)
	}
}

// ProcessDue sends every due reminder once. Returns the number sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.store.ListDue(ctx, w.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reminder worker: list due: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	w.logger.Info("reminder worker: processing due events", "count", len(due))

	sent := 0
	for _, e := range due {
		if err := w.processOne(ctx, e); err != nil {
			w.logger.Error("reminder worker: failed to process event",
				"booking_id", e.BookingID, "offset", e.Offset.String(), "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (w *Worker) processOne(ctx context.Context, e Event) error {
	b, err := w.repo.Get(ctx, e.BookingID)
	if err != nil {
		if errors.Is(err, bookings.ErrBookingNotFound) {
			// Booking gone; drop the orphan so it stops showing up as due.
			w.store.MarkSent(ctx, e.BookingID, e.Offset)
			return nil
		}
		return fmt.Errorf("load booking: %w", err)
	}
	if b.Status != bookings.StatusConfirmed {
		w.store.MarkSent(ctx, e.BookingID, e.Offset)
		return nil
	}

	if err := w.sender.SendReminder(ctx, *b, e.Offset); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := w.store.MarkSent(ctx, e.BookingID, e.Offset); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	w.logger.Info("reminder worker: sent",
		"booking_id", e.BookingID, "offset", e.Offset.String())
	return nil
}
