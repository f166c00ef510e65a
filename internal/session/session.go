package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-ai/internal/slots"
)

// Stage is a named step in the scheduling workflow state machine.
type Stage string

const (
	StageGreeting          Stage = "greeting"
	StageCollectIdentity   Stage = "collect_identity"
	StageLookupPatient     Stage = "lookup_patient"
	StageClassifyType      Stage = "classify_appointment_type"
	StageFindSlots         Stage = "find_slots"
	StagePresentSlots      Stage = "present_slots"
	StageConfirmSlot       Stage = "confirm_slot"
	StageCollectInsurance  Stage = "collect_insurance"
	StageCreateBooking     Stage = "create_booking"
	StageNotify            Stage = "notify"
	StageScheduleReminders Stage = "schedule_reminders"
	StageExportData        Stage = "export_data"
	StageDone              Stage = "done"
	StageEscalated         Stage = "escalated"
)

// Order is the forward progression of the workflow. StageEscalated sits
// outside the order and is reachable from any non-terminal stage.
var Order = []Stage{
	StageGreeting,
	StageCollectIdentity,
	StageLookupPatient,
	StageClassifyType,
	StageFindSlots,
	StagePresentSlots,
	StageConfirmSlot,
	StageCollectInsurance,
	StageCreateBooking,
	StageNotify,
	StageScheduleReminders,
	StageExportData,
	StageDone,
}

// Index returns the position of the stage in Order, or -1 for StageEscalated
// and unknown stages.
func (s Stage) Index() int {
	for i, stage := range Order {
		if stage == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether the stage ends the workflow.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageEscalated
}

// ErrStageRegression indicates an attempt to move a session backwards.
var ErrStageRegression = errors.New("session: stage may not move backwards")

// ErrSessionEscalated indicates the session is frozen pending human handoff.
var ErrSessionEscalated = errors.New("session: escalated, stage frozen")

// ErrSessionNotFound is returned by stores for unknown session ids.
var ErrSessionNotFound = errors.New("session: not found")

// PatientType classifies the caller for appointment-length purposes.
type PatientType string

const (
	PatientTypeUnknown   PatientType = ""
	PatientTypeNew       PatientType = "new"
	PatientTypeReturning PatientType = "returning"
)

// Insurance holds the insurance-on-file fields collected for covered visits.
type Insurance struct {
	Carrier     string `json:"carrier,omitempty"`
	MemberID    string `json:"member_id,omitempty"`
	GroupNumber string `json:"group_number,omitempty"`
}

// Patient accumulates identity fields over the conversation. Mutated only by
// the engine through validated field updates.
type Patient struct {
	Name               string      `json:"name,omitempty"`
	DateOfBirth        string      `json:"dob,omitempty"` // normalized MM/DD/YYYY
	Phone              string      `json:"phone,omitempty"`
	Email              string      `json:"email,omitempty"`
	Type               PatientType `json:"patient_type,omitempty"`
	PatientID          string      `json:"patient_id,omitempty"`
	ProviderPreference string      `json:"provider_preference,omitempty"`
	SelfPay            bool        `json:"self_pay,omitempty"`
	Insurance          Insurance   `json:"insurance,omitempty"`
}

// Appointment tracks slot discovery through confirmation.
type Appointment struct {
	Type           slots.AppointmentType `json:"type,omitempty"`
	Offered        []slots.Offer         `json:"offered,omitempty"`
	OfferGen       int                   `json:"offer_gen,omitempty"`
	Confirmed      *slots.Offer          `json:"confirmed,omitempty"`
	BookingID      string                `json:"booking_id,omitempty"`
	NotifyFailed   bool                  `json:"notify_failed,omitempty"`
	DayPreference  []time.Weekday        `json:"day_preference,omitempty"`
	TimePreference string                `json:"time_preference,omitempty"` // "morning" or "afternoon"
}

// Session is one patient's end-to-end scheduling conversation instance.
type Session struct {
	ID          string        `json:"id"`
	Stage       Stage         `json:"stage"`
	Patient     Patient       `json:"patient"`
	Appointment Appointment   `json:"appointment"`
	Retries     map[Stage]int `json:"retries,omitempty"`
	Escalated   bool          `json:"escalated"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// New creates a session positioned at the greeting stage.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Stage:     StageGreeting,
		Retries:   make(map[Stage]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the session to a later stage. The only permitted non-forward
// moves are the stay-in-place self loop (missing fields) and the explicit
// ConfirmSlot -> PresentSlots return when a reservation is lost.
func (s *Session) Advance(to Stage) error {
	if s.Escalated {
		return ErrSessionEscalated
	}
	if to == s.Stage {
		return nil
	}
	if to == StagePresentSlots && s.Stage == StageConfirmSlot {
		s.setStage(to)
		return nil
	}
	from, dest := s.Stage.Index(), to.Index()
	if dest < 0 || dest < from {
		return fmt.Errorf("%w: %s -> %s", ErrStageRegression, s.Stage, to)
	}
	s.Retries[s.Stage] = 0
	s.setStage(to)
	return nil
}

// RecordFailure increments the retry counter for the current stage and
// returns the new count.
func (s *Session) RecordFailure() int {
	if s.Retries == nil {
		s.Retries = make(map[Stage]int)
	}
	s.Retries[s.Stage]++
	s.UpdatedAt = time.Now().UTC()
	return s.Retries[s.Stage]
}

// Escalate freezes the session for human handoff. One-way: never reset.
func (s *Session) Escalate() {
	s.Escalated = true
	s.setStage(StageEscalated)
}

func (s *Session) setStage(to Stage) {
	s.Stage = to
	s.UpdatedAt = time.Now().UTC()
}
