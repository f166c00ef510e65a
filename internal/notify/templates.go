package notify

import (
	"fmt"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
)

// Clinic identity used in outgoing messages.
const (
	ClinicName    = "MediCare Allergy & Wellness Center"
	ClinicAddress = "456 Healthcare Boulevard, Suite 300"
	ClinicPhone   = "(555) 123-4567"
)

// ConfirmationEmail builds the subject, plain-text body, and HTML body for
// a booking confirmation email.
func ConfirmationEmail(b bookings.Booking) (subject, text, html string) {
	date := b.Start.Format("Monday, January 2, 2006")
	clock := b.Start.Format("3:04 PM")

	subject = fmt.Sprintf("Appointment Confirmation - %s at %s", date, clock)

	text = fmt.Sprintf(`Dear %s,

Your appointment has been confirmed!

APPOINTMENT DETAILS:
Date: %s
Time: %s
Doctor: %s
Appointment Type: %s
Confirmation ID: %s

LOCATION:
%s
%s
Phone: %s

IMPORTANT REMINDERS:
- Please arrive 15 minutes early
- Bring your insurance card and photo ID
- Complete any attached forms before your visit
- For cancellations, please call 24 hours in advance

We look forward to seeing you!

Best regards,
%s`, b.PatientName, date, clock, b.Provider, b.Type.Label(), b.ID,
		ClinicName, ClinicAddress, ClinicPhone, ClinicName)

	html = fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="background-color: #4CAF50; color: white; padding: 20px; text-align: center;">
    <h1>Appointment Confirmed!</h1>
  </div>
  <div style="padding: 20px;">
    <p>Dear <strong>%s</strong>,</p>
    <p>Your appointment has been successfully scheduled. Here are your appointment details:</p>
    <div style="background-color: #f9f9f9; border: 1px solid #ddd; padding: 15px; margin: 15px 0;">
      <h3>Appointment Details</h3>
      <p><strong>Date:</strong> %s</p>
      <p><strong>Time:</strong> %s</p>
      <p><strong>Doctor:</strong> %s</p>
      <p><strong>Appointment Type:</strong> %s</p>
      <p><strong>Confirmation ID:</strong> %s</p>
    </div>
    <div style="background-color: #e8f5e8; padding: 15px; border-left: 4px solid #4CAF50;">
      <h3>Clinic Location</h3>
      <p><strong>%s</strong><br>%s<br>Phone: %s</p>
    </div>
    <h3>Important Reminders</h3>
    <ul>
      <li>Please arrive <strong>15 minutes early</strong></li>
      <li>Bring your <strong>insurance card and photo ID</strong></li>
      <li>Complete any attached forms before your visit</li>
      <li>For cancellations, please call <strong>24 hours in advance</strong></li>
    </ul>
    <p>We look forward to providing you with excellent care!</p>
  </div>
  <div style="text-align: center; color: #666; padding: 20px;">
    <p>Best regards,<br><strong>%s</strong></p>
  </div>
</body>
</html>`, b.PatientName, date, clock, b.Provider, b.Type.Label(), b.ID,
		ClinicName, ClinicAddress, ClinicPhone, ClinicName)

	return subject, text, html
}

// ConfirmationSMS builds the booking confirmation text message.
func ConfirmationSMS(b bookings.Booking) string {
	return fmt.Sprintf("Hi %s, your appointment with %s on %s at %s is confirmed. Confirmation ID: %s. Questions? Call %s. %s",
		b.PatientName,
		b.Provider,
		b.Start.Format("Mon 1/2"),
		b.Start.Format("3:04 PM"),
		b.ID,
		ClinicPhone,
		ClinicName)
}

// ReminderSMS builds the reminder text for the given lead time before the
// appointment. Unknown offsets fall back to the day-before wording.
func ReminderSMS(b bookings.Booking, offset time.Duration) string {
	date := b.Start.Format("Monday, January 2")
	clock := b.Start.Format("3:04 PM")

	switch offset {
	case 4 * time.Hour:
		return fmt.Sprintf("Hi %s, your appointment with %s is in 4 hours at %s. Have you completed your intake forms? Please reply YES to confirm your attendance or call us at %s. %s",
			b.PatientName, b.Provider, clock, ClinicPhone, ClinicName)
	case time.Hour:
		return fmt.Sprintf("Final reminder: %s, your appointment is in 1 hour at %s with %s. Please confirm by replying YES or call %s if you need to reschedule. See you soon! %s",
			b.PatientName, clock, b.Provider, ClinicPhone, ClinicName)
	default:
		return fmt.Sprintf("Hi %s, this is a reminder that you have an appointment tomorrow (%s) at %s with %s. Please arrive 15 minutes early. %s - %s",
			b.PatientName, date, clock, b.Provider, ClinicName, ClinicPhone)
	}
}
