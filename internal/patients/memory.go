package patients

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is a mutex-guarded patient store used in development
// and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byKey   map[string]*Patient
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byKey: make(map[string]*Patient)}
}

var _ Repository = (*InMemoryRepository)(nil)

// Seed inserts a record directly, for tests and sample data.
func (r *InMemoryRepository) Seed(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := p
	r.byKey[identityKey(p.Name, p.DateOfBirth)] = &cp
}

func (r *InMemoryRepository) Lookup(_ context.Context, id Identity) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[identityKey(id.Name, id.DateOfBirth)]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) Create(_ context.Context, id Identity, email string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identityKey(id.Name, id.DateOfBirth)
	if existing, ok := r.byKey[key]; ok {
		cp := *existing
		return &cp, nil
	}
	p := &Patient{
		ID:          uuid.NewString(),
		Name:        id.Name,
		DateOfBirth: id.DateOfBirth,
		Phone:       id.Phone,
		Email:       email,
		CreatedAt:   time.Now().UTC(),
	}
	r.byKey[key] = p
	cp := *p
	return &cp, nil
}
