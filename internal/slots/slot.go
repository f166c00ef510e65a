package slots

import (
	"context"
	"errors"
	"time"
)

// AppointmentType determines visit duration: comprehensive 60-minute
// consultations for new patients, 30-minute follow-ups for returning ones.
type AppointmentType string

const (
	TypeUnknown    AppointmentType = ""
	TypeNewPatient AppointmentType = "new_patient"
	TypeFollowUp   AppointmentType = "follow_up"
)

// Duration returns the visit length for the appointment type.
func (t AppointmentType) Duration() time.Duration {
	if t == TypeNewPatient {
		return 60 * time.Minute
	}
	return 30 * time.Minute
}

// Label is the patient-facing name of the appointment type.
func (t AppointmentType) Label() string {
	if t == TypeNewPatient {
		return "New Patient Consultation"
	}
	return "Follow-up Visit"
}

// RequiresInsurance reports whether the visit type needs insurance on file.
// Follow-ups can proceed self-pay; new-patient consultations are billed
// through the carrier.
func (t AppointmentType) RequiresInsurance() bool {
	return t == TypeNewPatient
}

// Offer is a proposed, not-yet-confirmed appointment time/provider pairing.
// Immutable once presented; superseded offers expire when a newer candidate
// set is generated for the session.
type Offer struct {
	ID       string          `json:"id"`
	Provider string          `json:"provider"`
	Start    time.Time       `json:"start"`
	Duration time.Duration   `json:"duration"`
	Type     AppointmentType `json:"type"`
}

// Constraints narrow a slot query.
type Constraints struct {
	Provider   string    // optional provider preference
	NotBefore  time.Time // beginning of the lookahead window
	Lookahead  time.Duration
	DaysOfWeek []time.Weekday // optional day-of-week filter
	AfterTime  string         // "15:04" lower bound within a day
	BeforeTime string         // "15:04" upper bound within a day
}

// ErrSlotUnavailable is returned by Reserve when another session already
// holds the slot.
var ErrSlotUnavailable = errors.New("slots: slot no longer available")

// ErrNoSlots is returned by Query when nothing in the window matches.
var ErrNoSlots = errors.New("slots: no matching slots in window")

// Finder locates and reserves appointment slots against a single calendar
// source of truth. Reserve must be an atomic check-and-reserve: two sessions
// racing for the same offer must not both succeed.
type Finder interface {
	Query(ctx context.Context, apptType AppointmentType, c Constraints) ([]Offer, error)
	Reserve(ctx context.Context, offerID string) error
	Release(ctx context.Context, offerID string) error
}
