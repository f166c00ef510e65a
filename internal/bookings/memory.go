package bookings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded booking store used in development
// and tests.
type MemoryRepository struct {
	mu        sync.Mutex
	byID      map[string]*Booking
	bySession map[string]string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]*Booking),
		bySession: make(map[string]string),
	}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) CreateForSession(_ context.Context, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.bySession[b.SessionID]; ok {
		cp := *r.byID[id]
		return &cp, nil
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = StatusConfirmed
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	cp := b
	r.byID[b.ID] = &cp
	r.bySession[b.SessionID] = b.ID
	out := cp
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) GetBySession(_ context.Context, sessionID string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) Cancel(_ context.Context, id string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	b.Status = StatusCancelled
	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) ListUnexported(_ context.Context) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.byID {
		if b.Status == StatusConfirmed && !b.Exported {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkExported(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Exported = true
	return nil
}
