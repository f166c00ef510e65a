package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/slots"
)

type recordingEmail struct {
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type recordingSMS struct {
	sent []string
	err  error
}

func (r *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, body)
	return nil
}

func testBooking() bookings.Booking {
	return bookings.Booking{
		ID:          "bk-42",
		SessionID:   "s-1",
		PatientName: "John Doe",
		Provider:    "Dr. Johnson",
		Start:       time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		Duration:    60 * time.Minute,
		Type:        slots.TypeNewPatient,
		Phone:       "5551234567",
		Email:       "john@example.com",
	}
}

func TestSendConfirmationBothChannels(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	svc := NewService(email, sms, nil)

	if err := svc.SendConfirmation(context.Background(), testBooking()); err != nil {
		t.Fatalf("SendConfirmation failed: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(email.sent))
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected one SMS, got %d", len(sms.sent))
	}
	if !strings.Contains(email.sent[0].Body, "bk-42") {
		t.Fatal("expected email body to carry the confirmation ID")
	}
}

func TestSendConfirmationToleratesOneFailedChannel(t *testing.T) {
	email := &recordingEmail{err: errors.New("smtp down")}
	sms := &recordingSMS{}
	svc := NewService(email, sms, nil)

	if err := svc.SendConfirmation(context.Background(), testBooking()); err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected SMS to still go out, got %d", len(sms.sent))
	}
}

func TestSendConfirmationAllChannelsFail(t *testing.T) {
	email := &recordingEmail{err: errors.New("smtp down")}
	sms := &recordingSMS{err: errors.New("gateway down")}
	svc := NewService(email, sms, nil)

	if err := svc.SendConfirmation(context.Background(), testBooking()); err == nil {
		t.Fatal("expected error when every channel fails")
	}
}

func TestSendConfirmationSkipsMissingContacts(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	svc := NewService(email, sms, nil)

	b := testBooking()
	b.Email = ""
	if err := svc.SendConfirmation(context.Background(), b); err != nil {
		t.Fatalf("SendConfirmation failed: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("expected no email without an address, got %d", len(email.sent))
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected one SMS, got %d", len(sms.sent))
	}
}

func TestSendReminder(t *testing.T) {
	sms := &recordingSMS{}
	svc := NewService(nil, sms, nil)

	if err := svc.SendReminder(context.Background(), testBooking(), 4*time.Hour); err != nil {
		t.Fatalf("SendReminder failed: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected one reminder, got %d", len(sms.sent))
	}
	if !strings.Contains(sms.sent[0], "in 4 hours") {
		t.Fatalf("expected 4 hour wording, got %q", sms.sent[0])
	}
}

func TestSendReminderFailurePropagates(t *testing.T) {
	sms := &recordingSMS{err: errors.New("gateway down")}
	svc := NewService(nil, sms, nil)

	if err := svc.SendReminder(context.Background(), testBooking(), time.Hour); err == nil {
		t.Fatal("expected reminder failure to propagate")
	}
}
