package repository

import (
	"sync"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/repository"
	"ikedadada/go-tor4iot/internal/domain/value_object"
)

// CircuitRepo is a single-slot circuit store. Saving a circuit replaces the
// previous one.
type CircuitRepo struct {
	mu  sync.RWMutex
	cur *entity.Circuit
}

func NewCircuitRepo() *CircuitRepo {
	return &CircuitRepo{}
}

func (r *CircuitRepo) Save(c *entity.Circuit) error {
	if c == nil {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = c
	return nil
}

func (r *CircuitRepo) Find(id value_object.CircuitID) (*entity.Circuit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cur == nil || !r.cur.ID().Equal(id) {
		return nil, repository.ErrNotFound
	}
	return r.cur, nil
}

func (r *CircuitRepo) Active() (*entity.Circuit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cur == nil {
		return nil, repository.ErrNotFound
	}
	return r.cur, nil
}

func (r *CircuitRepo) Delete(id value_object.CircuitID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil && r.cur.ID().Equal(id) {
		r.cur = nil
	}
	return nil
}
