package reminders

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound is returned when no reminder matches the given key.
var ErrEventNotFound = errors.New("reminders: event not found")

// Event is one scheduled reminder. A booking gets one event per configured
// lead time; (BookingID, Offset) is the unique key.
type Event struct {
	BookingID string        `json:"booking_id"`
	Offset    time.Duration `json:"offset"`
	SendAt    time.Time     `json:"send_at"`
	Sent      bool          `json:"sent"`
}

// Store persists reminder events.
type Store interface {
	Put(ctx context.Context, events []Event) error
	ListDue(ctx context.Context, now time.Time) ([]Event, error)
	MarkSent(ctx context.Context, bookingID string, offset time.Duration) error
	CancelForBooking(ctx context.Context, bookingID string) (int, error)
}
