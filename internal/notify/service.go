package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// Service fans booking notifications out to the configured channels.
type Service struct {
	email  EmailSender
	sms    SMSSender
	logger *logging.Logger
}

// NewService creates a notification service. Either sender may be nil; the
// corresponding channel is skipped.
func NewService(email EmailSender, sms SMSSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:  email,
		sms:    sms,
		logger: logger,
	}
}

// SendConfirmation delivers the booking confirmation over email and SMS.
// A channel is attempted only when the patient supplied a matching contact.
// One failed channel does not fail the call; the error is returned only
// when every attempted channel failed.
func (s *Service) SendConfirmation(ctx context.Context, b bookings.Booking) error {
	attempted := 0
	failed := 0

	if s.email != nil && b.Email != "" {
		attempted++
		subject, text, html := ConfirmationEmail(b)
		msg := EmailMessage{
			To:      b.Email,
			ToName:  b.PatientName,
			Subject: subject,
			Body:    text,
			HTML:    html,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: confirmation email failed", "error", err, "booking_id", b.ID, "to", b.Email)
			failed++
		} else {
			s.logger.Info("notify: confirmation email sent", "booking_id", b.ID, "to", b.Email)
		}
	}

	if s.sms != nil && b.Phone != "" {
		attempted++
		if err := s.sms.SendSMS(ctx, b.Phone, ConfirmationSMS(b)); err != nil {
			s.logger.Error("notify: confirmation SMS failed", "error", err, "booking_id", b.ID, "to", b.Phone)
			failed++
		} else {
			s.logger.Info("notify: confirmation SMS sent", "booking_id", b.ID, "to", b.Phone)
		}
	}

	if attempted == 0 {
		s.logger.Warn("notify: no contact channels for booking", "booking_id", b.ID)
		return nil
	}
	if failed == attempted {
		return fmt.Errorf("notify: all %d channel(s) failed for booking %s", attempted, b.ID)
	}
	return nil
}

// SendReminder delivers a reminder SMS for the given lead time.
func (s *Service) SendReminder(ctx context.Context, b bookings.Booking, offset time.Duration) error {
	if s.sms == nil || b.Phone == "" {
		s.logger.Warn("notify: no SMS channel for reminder", "booking_id", b.ID)
		return nil
	}
	if err := s.sms.SendSMS(ctx, b.Phone, ReminderSMS(b, offset)); err != nil {
		return fmt.Errorf("notify: reminder SMS failed: %w", err)
	}
	s.logger.Info("notify: reminder sent", "booking_id", b.ID, "offset", offset.String())
	return nil
}
