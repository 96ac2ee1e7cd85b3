package rules

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// RuleStore manages rule persistence and retrieval. It is the rule
// repository the classification core reads active rules from.
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules, active or not
	List() ([]*Rule, error)

	// List all active rules
	ListActive() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add adds a new rule to the store, enforcing unique IDs and setting timestamps.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return errors.Wrapf(ErrDuplicateRule, "rule with ID %s", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, errors.Wrapf(ErrRuleNotFound, "rule with ID %s", id)
	}
	return rule.Clone(), nil
}

// List returns all rules ordered by priority, then ID.
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	return s.collect(func(*Rule) bool { return true }), nil
}

// ListActive returns all active rules ordered by priority, then ID.
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	return s.collect(func(r *Rule) bool { return r.Active }), nil
}

func (s *InMemoryRuleStore) collect(keep func(*Rule) bool) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if keep(rule) {
			out = append(out, rule.Clone())
		}
	}
	sortRules(out)
	return out
}

// Update updates an existing rule, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return errors.Wrapf(ErrRuleNotFound, "rule with ID %s", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return errors.Wrapf(ErrRuleNotFound, "rule with ID %s", id)
	}

	delete(s.rules, id)
	return nil
}

func sortRules(list []*Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return lessID(list[i].ID, list[j].ID)
	})
}

// lessID orders integer rule IDs by value, so "9" comes before "10", and
// ahead of all other IDs, which order lexically.
func lessID(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil && x != y:
		return x < y
	case errA == nil && errB != nil:
		return true
	case errA != nil && errB == nil:
		return false
	}
	return a < b
}
