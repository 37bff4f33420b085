package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// MemoryRepository is an in-memory Repository implementation.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

// Create stores a record, assigning an ID if it has none.
func (r *MemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

// Get retrieves a record by ID.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Query returns records matching the filter, newest first.
func (r *MemoryRepository) Query(_ context.Context, f Filter) ([]*Record, error) {
	r.mu.RLock()
	matched := r.match(f)
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EndTime.After(matched[j].EndTime)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	out := make([]*Record, len(matched))
	for i, rec := range matched {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

// Count returns the number of records matching the filter, ignoring
// Limit and Offset.
func (r *MemoryRepository) Count(_ context.Context, f Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.match(f)), nil
}

// match must be called with the lock held.
func (r *MemoryRepository) match(f Filter) []*Record {
	var matched []*Record
	for _, rec := range r.records {
		if f.Address != "" && rec.Address != f.Address {
			continue
		}
		if f.Direction != "" && rec.Direction != f.Direction {
			continue
		}
		if f.Cause != "" && rec.Cause != f.Cause {
			continue
		}
		if !f.After.IsZero() && rec.EndTime.Before(f.After) {
			continue
		}
		if !f.Before.IsZero() && rec.EndTime.After(f.Before) {
			continue
		}
		matched = append(matched, rec)
	}
	return matched
}
