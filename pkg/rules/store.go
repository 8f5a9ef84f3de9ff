package rules

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists rules.
type Store interface {
	// Create stores a new rule, assigning an ID when none is set.
	Create(ctx context.Context, rule Rule) (Rule, error)
	// Update replaces an existing rule by ID.
	Update(ctx context.Context, rule Rule) (Rule, error)
	// Get returns the rule with the given ID.
	Get(ctx context.Context, id uuid.UUID) (Rule, error)
	// Delete removes the rule with the given ID.
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns all rules, highest priority first, creation time breaking
	// ties.
	List(ctx context.Context) ([]Rule, error)
	// ListEnabled returns only enabled rules in the same order as List, so
	// rules firing for the same input evaluate deterministically by priority.
	ListEnabled(ctx context.Context) ([]Rule, error)
	// SetEnabled toggles a rule without touching the rest of its definition.
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]Rule
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[uuid.UUID]Rule)}
}

func validateRule(rule Rule) error {
	if rule.Name == "" {
		return ErrMissingName
	}
	if len(rule.Actions) == 0 {
		return ErrNoActions
	}
	switch rule.Condition.Kind {
	case ConditionEventMatch, ConditionSchedule, ConditionMetricThreshold:
	case ConditionEventPattern:
		if len(rule.Condition.Events) == 0 || rule.Condition.Count <= 0 || rule.Condition.Window <= 0 {
			return ErrInvalidPattern
		}
	default:
		return ErrUnknownConditionKind
	}
	for _, action := range rule.Actions {
		switch action.Kind {
		case ActionSendTemplate, ActionEscalate, ActionLog, ActionCallWebhook:
		default:
			return ErrUnknownActionKind
		}
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, rule Rule) (Rule, error) {
	if err := validateRule(rule); err != nil {
		return Rule{}, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = cloneRule(rule)
	return rule, nil
}

func (s *MemoryStore) Update(ctx context.Context, rule Rule) (Rule, error) {
	if err := validateRule(rule); err != nil {
		return Rule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[rule.ID]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = cloneRule(rule)
	return rule, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return cloneRule(rule), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Rule, error) {
	return s.list(false), nil
}

func (s *MemoryStore) ListEnabled(ctx context.Context) ([]Rule, error) {
	return s.list(true), nil
}

func (s *MemoryStore) list(enabledOnly bool) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if enabledOnly && !rule.Enabled {
			continue
		}
		out = append(out, cloneRule(rule))
	}
	slices.SortFunc(out, func(a, b Rule) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (s *MemoryStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	s.rules[id] = rule
	return nil
}

func cloneRule(rule Rule) Rule {
	rule.Actions = slices.Clone(rule.Actions)
	rule.Recipients = slices.Clone(rule.Recipients)
	rule.Condition.Events = slices.Clone(rule.Condition.Events)
	return rule
}
