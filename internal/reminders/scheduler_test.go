package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/clinicflow/scheduling-ai/internal/bookings"
	"github.com/clinicflow/scheduling-ai/internal/slots"
)

var fixedNow = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func booking(id string, start time.Time) bookings.Booking {
	return bookings.Booking{
		ID:          id,
		SessionID:   "s-" + id,
		PatientName: "John Doe",
		Provider:    "Dr. Johnson",
		Start:       start,
		Duration:    30 * time.Minute,
		Type:        slots.TypeFollowUp,
		Phone:       "5551234567",
	}
}

func newTestScheduler(store Store) *Scheduler {
	offsets := []time.Duration{24 * time.Hour, 4 * time.Hour, time.Hour}
	return NewScheduler(store, offsets, nil).WithClock(func() time.Time { return fixedNow })
}

func TestScheduleCreatesThreeTiers(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)

	events, err := sched.Schedule(context.Background(), booking("bk-1", fixedNow.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	due, _ := store.ListDue(context.Background(), fixedNow.Add(48*time.Hour))
	if len(due) != 3 {
		t.Fatalf("expected 3 stored events, got %d", len(due))
	}
}

func TestScheduleSkipsPastTiers(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)

	// Appointment in 2 hours: 24h and 4h tiers already passed.
	events, err := sched.Schedule(context.Background(), booking("bk-2", fixedNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the 1h tier, got %d", len(events))
	}
	if events[0].Offset != time.Hour {
		t.Fatalf("expected 1h offset, got %s", events[0].Offset)
	}
}

func TestScheduleIsIdempotentForSentEvents(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)
	ctx := context.Background()
	b := booking("bk-3", fixedNow.Add(48*time.Hour))

	if _, err := sched.Schedule(ctx, b); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := store.MarkSent(ctx, "bk-3", 24*time.Hour); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if _, err := sched.Schedule(ctx, b); err != nil {
		t.Fatalf("re-Schedule failed: %v", err)
	}

	due, _ := store.ListDue(ctx, fixedNow.Add(48*time.Hour))
	for _, e := range due {
		if e.Offset == 24*time.Hour {
			t.Fatal("sent tier came back as due after re-schedule")
		}
	}
}

func TestCancelForBooking(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)
	ctx := context.Background()

	if _, err := sched.Schedule(ctx, booking("bk-4", fixedNow.Add(48*time.Hour))); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := sched.CancelForBooking(ctx, "bk-4"); err != nil {
		t.Fatalf("CancelForBooking failed: %v", err)
	}

	due, _ := store.ListDue(ctx, fixedNow.Add(48*time.Hour))
	if len(due) != 0 {
		t.Fatalf("expected no events after cancel, got %d", len(due))
	}
}
