package batch

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists batches.
type Store interface {
	// Create persists a new batch, assigning an ID when none is set.
	Create(ctx context.Context, b *Batch) error

	// Get retrieves a batch by ID.
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)

	// ListDue returns pending batches whose release time is at or before
	// the given instant, ordered by release time.
	ListDue(ctx context.Context, before time.Time) ([]Batch, error)

	// SetStatus moves the batch to the given status when its current status
	// matches from, returning false on a lost race.
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	// Finish records the member results and final status with a release
	// timestamp.
	Finish(ctx context.Context, id uuid.UUID, status Status, results []MemberResult) error
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*Batch
}

// NewMemoryStore creates an empty in-memory batch store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[uuid.UUID]*Batch)}
}

func (s *MemoryStore) Create(ctx context.Context, b *Batch) error {
	if b.Name == "" {
		return ErrMissingName
	}
	if len(b.MemberIDs) == 0 {
		return ErrEmptyBatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	clone := cloneBatch(b)
	s.batches[b.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	out := cloneBatch(b)
	return &out, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, before time.Time) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Batch
	for _, b := range s.batches {
		if b.Status != StatusPending || b.ScheduledFor.After(before) {
			continue
		}
		due = append(due, cloneBatch(b))
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	return due, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return false, ErrBatchNotFound
	}
	if b.Status != from {
		return false, nil
	}
	b.Status = to
	return true, nil
}

func (s *MemoryStore) Finish(ctx context.Context, id uuid.UUID, status Status, results []MemberResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	now := time.Now()
	b.Status = status
	b.Results = slices.Clone(results)
	b.ReleasedAt = &now
	return nil
}

func cloneBatch(b *Batch) Batch {
	out := *b
	out.MemberIDs = slices.Clone(b.MemberIDs)
	out.Results = slices.Clone(b.Results)
	return out
}
