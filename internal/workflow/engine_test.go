package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/extract"
	"github.com/clinicflow/scheduling-ai/internal/notify"
	"github.com/clinicflow/scheduling-ai/internal/patients"
	"github.com/clinicflow/scheduling-ai/internal/reminders"
	"github.com/clinicflow/scheduling-ai/internal/session"
	"github.com/clinicflow/scheduling-ai/internal/slots"
)

// Friday evening, so the earliest openings land on the following Monday.
var testNow = time.Date(2026, 9, 4, 20, 0, 0, 0, time.UTC)

type recordingEmail struct {
	mu   sync.Mutex
	sent []notify.EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg notify.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type recordingSMS struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, body)
	return nil
}

type fixture struct {
	engine   *Engine
	patients *patients.InMemoryRepository
	calendar *slots.MemoryCalendar
	bookings *bookings.MemoryRepository
	events   *reminders.MemoryStore
	handoffs *MemoryHandoffStore
	email    *recordingEmail
	sms      *recordingSMS
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		patients: patients.NewInMemoryRepository(),
		calendar: slots.NewMemoryCalendar(nil),
		bookings: bookings.NewMemoryRepository(),
		events:   reminders.NewMemoryStore(),
		handoffs: NewMemoryHandoffStore(),
		email:    &recordingEmail{},
		sms:      &recordingSMS{},
	}
	sched := reminders.NewScheduler(fx.events, []time.Duration{24 * time.Hour, 4 * time.Hour, time.Hour}, nil).
		WithClock(func() time.Time { return testNow })
	fx.engine = NewEngine(Config{RetryThreshold: 3}, Deps{
		Sessions:  session.NewMemoryStore(),
		Patients:  fx.patients,
		Finder:    fx.calendar,
		Bookings:  fx.bookings,
		Extractor: extract.NewRuleExtractor(),
		Notifier:  notify.NewService(fx.email, fx.sms, nil),
		Reminders: sched,
		Handoffs:  fx.handoffs,
	})
	fx.engine.now = func() time.Time { return testNow }
	return fx
}

func (fx *fixture) start(t *testing.T) string {
	t.Helper()
	r, err := fx.engine.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if r.Stage != session.StageGreeting {
		t.Fatalf("new session stage = %s, want %s", r.Stage, session.StageGreeting)
	}
	return r.SessionID
}

func (fx *fixture) say(t *testing.T, id, msg string) *Reply {
	t.Helper()
	r, err := fx.engine.HandleMessage(context.Background(), id, msg)
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", msg, err)
	}
	return r
}

func (fx *fixture) seedReturning(t *testing.T, name, dob, phone string) {
	t.Helper()
	fx.patients.Seed(patients.Patient{
		ID:          "pt-" + strings.ToLower(strings.Fields(name)[0]),
		Name:        name,
		DateOfBirth: dob,
		Phone:       phone,
		Email:       strings.ToLower(strings.Fields(name)[0]) + "@example.com",
	})
}

func TestNewPatientHappyPath(t *testing.T) {
	fx := newFixture(t)
	id := fx.start(t)

	r := fx.say(t, id, "Hi, my name is John Doe, I was born on 01/15/1985. I'm a new patient. You can reach me at 555-123-4567 or john.doe@example.com")
	if r.Stage != session.StagePresentSlots {
		t.Fatalf("stage = %s, want %s (message: %q)", r.Stage, session.StagePresentSlots, r.Message)
	}
	if len(r.Offers) != 5 {
		t.Fatalf("offered %d slots, want 5", len(r.Offers))
	}
	for _, o := range r.Offers {
		if o.Duration != time.Hour {
			t.Fatalf("new patient offer duration = %s, want 1h", o.Duration)
		}
	}

	r = fx.say(t, id, "option 2 works for me")
	if r.Stage != session.StageConfirmSlot {
		t.Fatalf("stage = %s, want %s", r.Stage, session.StageConfirmSlot)
	}

	r = fx.say(t, id, "yes")
	if r.Stage != session.StageCollectInsurance {
		t.Fatalf("stage = %s, want %s (message: %q)", r.Stage, session.StageCollectInsurance, r.Message)
	}

	r = fx.say(t, id, "I have Blue Cross, member ID ABC12345")
	if !r.Done {
		t.Fatalf("expected done reply, got stage %s: %q", r.Stage, r.Message)
	}
	if r.BookingID == "" {
		t.Fatal("done reply missing booking ID")
	}

	b, err := fx.bookings.GetBySession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBySession: %v", err)
	}
	if b.Type != slots.TypeNewPatient || b.Duration != time.Hour {
		t.Fatalf("booking type/duration = %s/%s, want new_patient/1h", b.Type, b.Duration)
	}
	if b.PatientName != "John Doe" {
		t.Fatalf("booking patient name = %q", b.PatientName)
	}

	if len(fx.email.sent) != 1 {
		t.Fatalf("confirmation emails sent = %d, want 1", len(fx.email.sent))
	}
	if len(fx.sms.sent) != 1 {
		t.Fatalf("confirmation texts sent = %d, want 1", len(fx.sms.sent))
	}

	due, err := fx.events.ListDue(context.Background(), b.Start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("reminder events = %d, want 3", len(due))
	}
}

func TestReturningPatientShortVisit(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Jane Smith", "03/22/1990", "(555) 987-6543")
	id := fx.start(t)

	r := fx.say(t, id, "Jane Smith, 03/22/1990")
	if r.Stage != session.StagePresentSlots {
		t.Fatalf("stage = %s, want %s (message: %q)", r.Stage, session.StagePresentSlots, r.Message)
	}
	for _, o := range r.Offers {
		if o.Duration != 30*time.Minute {
			t.Fatalf("returning patient offer duration = %s, want 30m", o.Duration)
		}
	}

	fx.say(t, id, "the first one")
	r = fx.say(t, id, "yes")
	if !r.Done {
		t.Fatalf("follow-up should book without insurance, got stage %s: %q", r.Stage, r.Message)
	}

	b, err := fx.bookings.GetBySession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBySession: %v", err)
	}
	if b.Type != slots.TypeFollowUp {
		t.Fatalf("booking type = %s, want follow_up", b.Type)
	}
	// Contact info came from the record, not the conversation.
	if b.Phone == "" || b.Email == "" {
		t.Fatalf("booking contact not backfilled from record: phone=%q email=%q", b.Phone, b.Email)
	}
}

func TestSelfPaySkipsInsurance(t *testing.T) {
	fx := newFixture(t)
	id := fx.start(t)

	fx.say(t, id, "my name is Bob Miller, born on 07/04/1978, new patient, I'll pay out of pocket")
	fx.say(t, id, "1")
	r := fx.say(t, id, "yes")
	if !r.Done {
		t.Fatalf("self-pay should skip insurance, got stage %s: %q", r.Stage, r.Message)
	}
}

func TestRepeatedGarbageEscalates(t *testing.T) {
	fx := newFixture(t)
	id := fx.start(t)

	// First message only lands on the identity question.
	r := fx.say(t, id, "qwerty")
	if r.Escalated {
		t.Fatal("escalated on first message")
	}
	for i := 0; i < 2; i++ {
		r = fx.say(t, id, "asdf asdf")
		if r.Escalated {
			t.Fatalf("escalated after %d failures, threshold is 3", i+1)
		}
	}

	r = fx.say(t, id, "zzzzz")
	if !r.Escalated {
		t.Fatalf("expected escalation, got stage %s: %q", r.Stage, r.Message)
	}
	if !strings.Contains(r.Message, notify.ClinicPhone) {
		t.Fatalf("escalation reply should include the clinic phone: %q", r.Message)
	}

	payload, err := fx.handoffs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("handoff Get: %v", err)
	}
	if payload.FailedStage != session.StageCollectIdentity {
		t.Fatalf("handoff failed stage = %s, want %s", payload.FailedStage, session.StageCollectIdentity)
	}
	if payload.LastMessage != "zzzzz" {
		t.Fatalf("handoff last message = %q", payload.LastMessage)
	}
	if payload.RetriesByStage[session.StageCollectIdentity] != 3 {
		t.Fatalf("handoff retries = %d, want 3", payload.RetriesByStage[session.StageCollectIdentity])
	}

	// The session is destroyed on escalation; the handoff record survives.
	_, err = fx.engine.HandleMessage(context.Background(), id, "my name is John Doe, born on 01/15/1985")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("escalated session still reachable: err=%v", err)
	}
	if _, err := fx.handoffs.Get(context.Background(), id); err != nil {
		t.Fatalf("handoff record gone after escalation: %v", err)
	}
}

func TestEscalationFreesReservedSlot(t *testing.T) {
	fx := newFixture(t)
	id := fx.start(t)

	r := fx.say(t, id, "my name is Ivan Cole, born on 11/11/1980, new patient")
	chosen := r.Offers[0]
	fx.say(t, id, "1")
	r = fx.say(t, id, "yes")
	if r.Stage != session.StageCollectInsurance {
		t.Fatalf("stage = %s, want %s (message: %q)", r.Stage, session.StageCollectInsurance, r.Message)
	}

	for i := 0; i < 3; i++ {
		r = fx.say(t, id, "asdf asdf")
	}
	if !r.Escalated {
		t.Fatalf("expected escalation, got stage %s: %q", r.Stage, r.Message)
	}

	payload, err := fx.handoffs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("handoff Get: %v", err)
	}
	if payload.FailedStage != session.StageCollectInsurance {
		t.Fatalf("handoff failed stage = %s, want %s", payload.FailedStage, session.StageCollectInsurance)
	}

	// The reservation held by the dead session must not block the slot.
	if err := fx.calendar.Reserve(context.Background(), chosen.ID); err != nil {
		t.Fatalf("slot still held after escalation: %v", err)
	}
}

func TestConcurrentSessionsRaceForSlot(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Alice Green", "02/02/1982", "(555) 111-2222")
	fx.seedReturning(t, "Carol White", "04/04/1984", "(555) 333-4444")

	idA := fx.start(t)
	idB := fx.start(t)

	fx.say(t, idA, "Alice Green, 02/02/1982, I'd like to see Dr. Johnson")
	fx.say(t, idB, "Carol White, 04/04/1984, I'd like to see Dr. Johnson")
	fx.say(t, idA, "option 1")
	fx.say(t, idB, "option 1")

	var wg sync.WaitGroup
	replies := make([]*Reply, 2)
	for i, id := range []string{idA, idB} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			r, err := fx.engine.HandleMessage(context.Background(), id, "yes")
			if err != nil {
				t.Errorf("HandleMessage: %v", err)
				return
			}
			replies[i] = r
		}(i, id)
	}
	wg.Wait()

	var won, lost int
	for _, r := range replies {
		if r == nil {
			t.Fatal("missing reply")
		}
		switch {
		case r.Done:
			won++
		case r.Stage == session.StagePresentSlots:
			lost++
			if len(r.Offers) == 0 {
				t.Fatal("loser got no fresh offers")
			}
		default:
			t.Fatalf("unexpected outcome: stage %s, %q", r.Stage, r.Message)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one of each", won, lost)
	}
}

func TestLostReservationReturnsToOffers(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Dave Black", "05/05/1975", "(555) 666-7777")
	id := fx.start(t)

	r := fx.say(t, id, "Dave Black, 05/05/1975")
	taken := r.Offers[0]
	fx.say(t, id, "1")

	// Another caller grabs the slot out from under the confirmation.
	if err := fx.calendar.Reserve(context.Background(), taken.ID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	r = fx.say(t, id, "yes")
	if r.Done || r.Escalated {
		t.Fatalf("expected fresh offers, got done=%v escalated=%v", r.Done, r.Escalated)
	}
	if r.Stage != session.StagePresentSlots {
		t.Fatalf("stage = %s, want %s", r.Stage, session.StagePresentSlots)
	}
	for _, o := range r.Offers {
		if o.ID == taken.ID {
			t.Fatalf("reserved slot %s re-offered", o.ID)
		}
	}
}

func TestNotifyFailureStillCompletesBooking(t *testing.T) {
	fx := newFixture(t)
	fx.email.err = errors.New("smtp down")
	fx.sms.err = errors.New("carrier down")
	fx.seedReturning(t, "Erin Gray", "06/06/1988", "(555) 888-9999")
	id := fx.start(t)

	fx.say(t, id, "Erin Gray, 06/06/1988")
	fx.say(t, id, "1")
	r := fx.say(t, id, "yes")
	if !r.Done {
		t.Fatalf("delivery failure blocked the booking: stage %s, %q", r.Stage, r.Message)
	}
	if _, err := fx.bookings.Get(context.Background(), r.BookingID); err != nil {
		t.Fatalf("booking missing after notify failure: %v", err)
	}

	// The final reply must own up to the failed delivery instead of
	// claiming the details were sent.
	if strings.Contains(r.Message, "We've sent the details") {
		t.Fatalf("reply claims delivery after total failure: %q", r.Message)
	}
	if !strings.Contains(r.Message, "couldn't reach you") {
		t.Fatalf("reply does not surface the delivery failure: %q", r.Message)
	}
	if !strings.Contains(r.Message, r.BookingID) {
		t.Fatalf("reply missing the confirmation ID to note: %q", r.Message)
	}
}

func TestPreferencesNarrowOffers(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Frank Hill", "08/08/1970", "(555) 222-1111")
	id := fx.start(t)

	fx.say(t, id, "Frank Hill, 08/08/1970")
	r := fx.say(t, id, "do you have anything on Friday afternoon instead?")
	if r.Stage != session.StagePresentSlots {
		t.Fatalf("stage = %s, want %s (message: %q)", r.Stage, session.StagePresentSlots, r.Message)
	}
	if len(r.Offers) == 0 {
		t.Fatal("no offers for friday afternoon")
	}
	for _, o := range r.Offers {
		if o.Start.Weekday() != time.Friday {
			t.Fatalf("offer on %s, want Friday", o.Start.Weekday())
		}
		if o.Start.Hour() < 12 {
			t.Fatalf("offer at %s is not in the afternoon", o.Start.Format("15:04"))
		}
	}
}

func TestChangedChoiceAtConfirm(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Gina Ford", "09/09/1992", "(555) 444-5555")
	id := fx.start(t)

	r := fx.say(t, id, "Gina Ford, 09/09/1992")
	second := r.Offers[1]
	fx.say(t, id, "1")

	r = fx.say(t, id, "actually option 2")
	if r.Stage != session.StageConfirmSlot {
		t.Fatalf("stage = %s, want %s", r.Stage, session.StageConfirmSlot)
	}

	r = fx.say(t, id, "yes")
	if !r.Done {
		t.Fatalf("expected done, got stage %s: %q", r.Stage, r.Message)
	}
	b, err := fx.bookings.Get(context.Background(), r.BookingID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !b.Start.Equal(second.Start) || b.Provider != second.Provider {
		t.Fatalf("booked %s/%s, want the second offer %s/%s", b.Provider, b.Start, second.Provider, second.Start)
	}
}

func TestDoneSessionDestroyed(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Hank Iris", "10/10/1965", "(555) 000-1234")
	id := fx.start(t)

	fx.say(t, id, "Hank Iris, 10/10/1965")
	fx.say(t, id, "1")
	r := fx.say(t, id, "yes")
	if !r.Done {
		t.Fatalf("expected done, got stage %s: %q", r.Stage, r.Message)
	}

	// The final reply tears down the session and its lock; only the
	// booking survives.
	if _, err := fx.engine.GetSession(context.Background(), id); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("done session still stored: err=%v", err)
	}
	_, err := fx.engine.HandleMessage(context.Background(), id, "yes")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("done session still reachable: err=%v", err)
	}
	if _, ok := fx.engine.locks.Load(id); ok {
		t.Fatal("session lock not released after terminal reply")
	}
	if _, err := fx.bookings.Get(context.Background(), r.BookingID); err != nil {
		t.Fatalf("booking missing after session teardown: %v", err)
	}
	if got := len(fx.email.sent); got != 1 {
		t.Fatalf("confirmation emails = %d, want 1", got)
	}
}

func TestCancelBookingFreesSlotAndReminders(t *testing.T) {
	fx := newFixture(t)
	fx.seedReturning(t, "Ken Lowe", "12/12/1969", "(555) 777-8888")
	id := fx.start(t)

	fx.say(t, id, "Ken Lowe, 12/12/1969")
	fx.say(t, id, "1")
	r := fx.say(t, id, "yes")
	if !r.Done {
		t.Fatalf("expected done, got stage %s: %q", r.Stage, r.Message)
	}

	ctx := context.Background()
	b, err := fx.engine.CancelBooking(ctx, r.BookingID)
	if err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if b.Status != bookings.StatusCancelled {
		t.Fatalf("booking status = %q, want %q", b.Status, bookings.StatusCancelled)
	}

	due, err := fx.events.ListDue(ctx, b.Start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("reminder events = %d after cancel, want 0", len(due))
	}

	// The freed time can be reserved again.
	if err := fx.calendar.Reserve(ctx, slots.OfferID(b.Provider, b.Start, b.Duration)); err != nil {
		t.Fatalf("slot still held after cancel: %v", err)
	}
}
