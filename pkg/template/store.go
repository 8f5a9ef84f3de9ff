package template

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds templates keyed by ID. Templates referenced by sent
// notifications are immutable; replacing one requires a new template ID.
type Store interface {
	// Put stores a new template or replaces an unreferenced one.
	Put(ctx context.Context, t Template) error

	// Get retrieves a template by ID.
	Get(ctx context.Context, id uuid.UUID) (*Template, error)

	// ByType returns all templates registered for a notification type.
	ByType(ctx context.Context, notificationType string) ([]Template, error)

	// Delete removes an unreferenced template.
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkReferenced freezes a template once a notification rendered from
	// it has been persisted.
	MarkReferenced(ctx context.Context, id uuid.UUID) error

	// Render loads the template and substitutes the supplied variables.
	Render(ctx context.Context, id uuid.UUID, vars map[string]string) (subject, body string, err error)
}

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	mu         sync.RWMutex
	templates  map[uuid.UUID]Template
	referenced map[uuid.UUID]bool
}

// NewMemoryStore creates a new in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates:  make(map[uuid.UUID]Template),
		referenced: make(map[uuid.UUID]bool),
	}
}

func (s *MemoryStore) Put(ctx context.Context, t Template) error {
	if t.Type == "" {
		return ErrMissingType
	}
	if len(t.Channels) == 0 {
		return ErrNoChannels
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if s.referenced[t.ID] {
		return ErrTemplateImmutable
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.templates[t.ID] = t
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ByType(ctx context.Context, notificationType string) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Template
	for _, t := range s.templates {
		if t.Type == notificationType {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	if s.referenced[id] {
		return ErrTemplateImmutable
	}
	delete(s.templates, id)
	return nil
}

func (s *MemoryStore) MarkReferenced(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	s.referenced[id] = true
	return nil
}

func (s *MemoryStore) Render(ctx context.Context, id uuid.UUID, vars map[string]string) (string, string, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	return t.Render(vars)
}
