package notification

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Suitable for development and testing.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*Notification
	attempts    map[uuid.UUID][]DeliveryAttempt
	byRecipient map[string][]uuid.UUID
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[uuid.UUID]*Notification),
		attempts:    make(map[uuid.UUID][]DeliveryAttempt),
		byRecipient: make(map[string][]uuid.UUID),
	}
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	if n.RecipientID == "" {
		return ErrMissingRecipient
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if _, exists := s.records[n.ID]; exists {
		return ErrAlreadyExists
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}

	// Clone to prevent external modifications of stored state.
	rec := cloneNotification(n)
	s.records[n.ID] = &rec
	s.byRecipient[n.RecipientID] = append(s.byRecipient[n.RecipientID], n.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := cloneNotification(rec)
	return &out, nil
}

func (s *MemoryStore) ListForRecipient(ctx context.Context, recipientID string, f Filter) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Notification
	for _, id := range s.byRecipient[recipientID] {
		rec := s.records[id]
		if rec.Status == StatusFailed && !f.IncludeFailed {
			continue
		}
		if rec.Status == StatusExpired && !f.IncludeExpired {
			continue
		}
		if f.OnlyUnread && rec.ReadAt != nil {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, rec.Type) {
			continue
		}
		if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
			continue
		}
		filtered = append(filtered, cloneNotification(rec))
	}

	// Newest first.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := f.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := start + f.Limit
	if f.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

func (s *MemoryStore) ListDue(ctx context.Context, before time.Time, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Notification
	for _, rec := range s.records {
		if rec.Status != StatusPending && rec.Status != StatusScheduled {
			continue
		}
		if rec.DueAt().After(before) {
			continue
		}
		due = append(due, cloneNotification(rec))
	}

	// Priority descending, creation time ascending within the same priority.
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, opts ...TransitionOption) (bool, error) {
	if err := validateEdges(from, to); err != nil {
		return false, err
	}
	cfg := applyTransitionOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return false, ErrNotFound
	}
	if !slices.Contains(from, rec.Status) {
		// Lost the race or the record already moved on. Expected under
		// concurrent dispatch, not an error.
		return false, nil
	}

	rec.Status = to
	switch to {
	case StatusRead:
		at := cfg.at
		rec.ReadAt = &at
	case StatusActedUpon:
		at := cfg.at
		rec.ActedUponAt = &at
		rec.ActedAction = cfg.action
	}
	return true, nil
}

func (s *MemoryStore) AppendAttempt(ctx context.Context, attempt DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	s.attempts[attempt.NotificationID] = append(s.attempts[attempt.NotificationID], attempt)
	return nil
}

func (s *MemoryStore) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := s.attempts[notificationID]
	out := make([]DeliveryAttempt, len(attempts))
	copy(out, attempts)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, rec := range s.records {
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, rec.Status) {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, rec.Type) {
			continue
		}
		if q.ReadSince != nil && (rec.ReadAt == nil || rec.ReadAt.Before(*q.ReadSince)) {
			continue
		}
		if q.CreatedBefore != nil && !rec.CreatedAt.Before(*q.CreatedBefore) {
			continue
		}
		out = append(out, cloneNotification(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func cloneNotification(n *Notification) Notification {
	out := *n
	out.Channels = slices.Clone(n.Channels)
	if n.Payload != nil {
		payload := make(map[string]any, len(n.Payload))
		for k, v := range n.Payload {
			payload[k] = v
		}
		out.Payload = payload
	}
	return out
}
