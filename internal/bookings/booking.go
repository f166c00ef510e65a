package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/slots"
)

// Booking status values.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// ErrBookingNotFound is returned when no booking matches the given ID.
var ErrBookingNotFound = errors.New("bookings: booking not found")

// Booking is a confirmed appointment record. Exactly one booking exists per
// session; re-creating for the same session returns the existing record.
type Booking struct {
	ID          string                `json:"id"`
	SessionID   string                `json:"session_id"`
	PatientID   string                `json:"patient_id"`
	PatientName string                `json:"patient_name"`
	Provider    string                `json:"provider"`
	Start       time.Time             `json:"start"`
	Duration    time.Duration         `json:"duration"`
	Type        slots.AppointmentType `json:"type"`
	Phone       string                `json:"phone,omitempty"`
	Email       string                `json:"email,omitempty"`
	Status      string                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	Exported    bool                  `json:"exported"`
}

// Repository persists bookings. CreateForSession is the idempotency point:
// a second call with the same session ID must return the original booking
// without creating a duplicate.
type Repository interface {
	CreateForSession(ctx context.Context, b Booking) (*Booking, error)
	Get(ctx context.Context, id string) (*Booking, error)
	GetBySession(ctx context.Context, sessionID string) (*Booking, error)
	Cancel(ctx context.Context, id string) (*Booking, error)
	ListUnexported(ctx context.Context) ([]Booking, error)
	MarkExported(ctx context.Context, id string) error
}
