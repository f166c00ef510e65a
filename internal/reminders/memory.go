package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded event store used in development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*Event
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

var _ Store = (*MemoryStore)(nil)

func eventKey(bookingID string, offset time.Duration) string {
	return fmt.Sprintf("%s|%s", bookingID, offset)
}

// Put upserts events. Re-scheduling an already sent event is a no-op so a
// replayed booking does not re-text the patient.
func (s *MemoryStore) Put(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		key := eventKey(e.BookingID, e.Offset)
		if existing, ok := s.events[key]; ok && existing.Sent {
			continue
		}
		cp := e
		s.events[key] = &cp
	}
	return nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Event
	for _, e := range s.events {
		if !e.Sent && !e.SendAt.After(now) {
			due = append(due, *e)
		}
	}
	return due, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, bookingID string, offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventKey(bookingID, offset)]
	if !ok {
		return ErrEventNotFound
	}
	e.Sent = true
	return nil
}

// CancelForBooking removes all unsent events for the booking and returns
// how many were dropped.
func (s *MemoryStore) CancelForBooking(_ context.Context, bookingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, e := range s.events {
		if e.BookingID == bookingID && !e.Sent {
			delete(s.events, key)
			dropped++
		}
	}
	return dropped, nil
}
