package rules

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/liamcoop/classifier/internal/logger"
)

// Registry manages the rule set: validated edits go to the store and every
// successful edit publishes a fresh snapshot for the classification engine.
//
// Readers call Snapshot and never block on writers. Refreshes are serialized
// so two concurrent edits cannot publish out of order.
type Registry struct {
	store     RuleStore
	validator *Validator
	cache     SnapshotCache
	refreshMu sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithValidator sets the save-time validator. The default validator only
// checks structure and labels.
func WithValidator(v *Validator) RegistryOption {
	return func(r *Registry) {
		r.validator = v
	}
}

// WithSnapshotCache replaces the default in-memory snapshot cache.
func WithSnapshotCache(c SnapshotCache) RegistryOption {
	return func(r *Registry) {
		r.cache = c
	}
}

// NewRegistry creates a registry and publishes the initial snapshot.
func NewRegistry(store RuleStore, opts ...RegistryOption) (*Registry, error) {
	reg := &Registry{
		store: store,
		cache: NewInMemorySnapshotCache(DefaultCacheConfig()),
	}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.validator == nil {
		v, err := NewValidator(nil, nil)
		if err != nil {
			return nil, err
		}
		reg.validator = v
	}

	if _, err := reg.Refresh(); err != nil {
		return nil, errors.Wrap(err, "failed to load rules")
	}
	return reg, nil
}

// Snapshot returns the current rule set, reloading it from the store on a
// cache miss.
func (reg *Registry) Snapshot() (*RuleSet, error) {
	if set := reg.cache.Get(); set != nil {
		return set, nil
	}
	return reg.Refresh()
}

// Refresh reloads the active rules from the store and publishes them.
func (reg *Registry) Refresh() (*RuleSet, error) {
	reg.refreshMu.Lock()
	defer reg.refreshMu.Unlock()

	active, err := reg.store.ListActive()
	if err != nil {
		return nil, err
	}
	set := NewRuleSet(active)
	reg.cache.Set(set)
	return set, nil
}

// ListActiveRules returns the active rules in evaluation order.
func (reg *Registry) ListActiveRules() ([]*Rule, error) {
	active, err := reg.store.ListActive()
	if err != nil {
		return nil, err
	}
	sortRules(active)
	return active, nil
}

// List returns every rule, active or not.
func (reg *Registry) List() ([]*Rule, error) {
	return reg.store.List()
}

// Get returns a rule by ID.
func (reg *Registry) Get(id string) (*Rule, error) {
	return reg.store.Get(id)
}

// AddRule validates and stores a new rule. An empty ID is assigned a UUID.
func (reg *Registry) AddRule(r *Rule) error {
	if r == nil {
		return errors.Wrap(ErrInvalidRule, "rule is nil")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := reg.validator.ValidateRule(r); err != nil {
		return err
	}
	if err := reg.store.Add(r); err != nil {
		return err
	}
	reg.publish()
	return nil
}

// UpdateRule validates and replaces an existing rule.
func (reg *Registry) UpdateRule(r *Rule) error {
	if r == nil {
		return errors.Wrap(ErrInvalidRule, "rule is nil")
	}
	if r.ID == "" {
		return errors.Wrap(ErrInvalidRule, "rule ID is required")
	}
	if err := reg.validator.ValidateRule(r); err != nil {
		return err
	}
	if err := reg.store.Update(r); err != nil {
		return err
	}
	reg.publish()
	return nil
}

// DeleteRule removes a rule.
func (reg *Registry) DeleteRule(id string) error {
	if err := reg.store.Delete(id); err != nil {
		return err
	}
	reg.publish()
	return nil
}

// ImportReport counts the outcome of an import.
type ImportReport struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Import validates every rule first and only then writes them, creating new
// rules and replacing existing ones by ID. A store failure part way through
// leaves the earlier writes in place.
func (reg *Registry) Import(list []*Rule) (ImportReport, error) {
	var report ImportReport

	seen := make(map[string]bool, len(list))
	for i, r := range list {
		if r == nil {
			return report, errors.Wrapf(ErrInvalidRule, "rule %d is empty", i)
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if seen[r.ID] {
			return report, errors.Wrapf(ErrDuplicateRule, "rule ID %s appears twice in import", r.ID)
		}
		seen[r.ID] = true
		if err := reg.validator.ValidateRule(r); err != nil {
			return report, errors.Wrapf(err, "rule %d", i)
		}
	}

	defer reg.publish()
	for _, r := range list {
		_, err := reg.store.Get(r.ID)
		switch {
		case err == nil:
			if err := reg.store.Update(r); err != nil {
				return report, err
			}
			report.Updated++
		case errors.Is(err, ErrRuleNotFound):
			if err := reg.store.Add(r); err != nil {
				return report, err
			}
			report.Created++
		default:
			return report, err
		}
	}
	return report, nil
}

// Export returns every rule in evaluation order.
func (reg *Registry) Export() ([]*Rule, error) {
	list, err := reg.store.List()
	if err != nil {
		return nil, err
	}
	sortRules(list)
	return list, nil
}

// publish refreshes after an edit. If the reload fails the cache is
// invalidated so the next Snapshot retries.
func (reg *Registry) publish() {
	if _, err := reg.Refresh(); err != nil {
		logger.Warn("rule snapshot refresh failed after edit", "error", err)
		reg.cache.Invalidate()
	}
}
