package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// Scheduler creates the tiered reminder events for confirmed bookings.
type Scheduler struct {
	store   Store
	offsets []time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// NewScheduler creates a scheduler. Offsets are lead times before the
// appointment start, typically 24h, 4h, and 1h.
func NewScheduler(store Store, offsets []time.Duration, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("reminders: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:   store,
		offsets: offsets,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock overrides the time source for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// Schedule creates one event per offset whose send time is still in the
// future. A same-day booking may legitimately get fewer than three tiers.
func (s *Scheduler) Schedule(ctx context.Context, b bookings.Booking) ([]Event, error) {
	now := s.now().UTC()
	var events []Event
	for _, offset := range s.offsets {
		sendAt := b.Start.Add(-offset)
		if sendAt.Before(now) {
			s.logger.Debug("reminders: tier already past, skipping",
				"booking_id", b.ID, "offset", offset.String())
			continue
		}
		events = append(events, Event{
			BookingID: b.ID,
			Offset:    offset,
			SendAt:    sendAt,
		})
	}
	if len(events) == 0 {
		return nil, nil
	}
	if err := s.store.Put(ctx, events); err != nil {
		return nil, fmt.Errorf("reminders: schedule: %w", err)
	}
	s.logger.Info("reminders: scheduled", "booking_id", b.ID, "count", len(events))
	return events, nil
}

// CancelForBooking drops pending reminders after a cancellation.
func (s *Scheduler) CancelForBooking(ctx context.Context, bookingID string) error {
	dropped, err := s.store.CancelForBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("reminders: cancel: %w", err)
	}
	s.logger.Info("reminders: cancelled", "booking_id", bookingID, "dropped", dropped)
	return nil
}
