package rules

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func newTestRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *InMemoryRuleStore) {
	t.Helper()
	store := NewInMemoryRuleStore()
	reg, err := NewRegistry(store, opts...)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return reg, store
}

// TestRegistryAddRulePublishesSnapshot verifies an added rule is visible in the next snapshot
func TestRegistryAddRulePublishesSnapshot(t *testing.T) {
	reg, _ := newTestRegistry(t)

	before, err := reg.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if before.Len() != 0 {
		t.Fatalf("expected empty snapshot, got %d", before.Len())
	}

	r := &Rule{Name: "High", Condition: Equals("priority", "HIGH"), Classification: "A", Active: true}
	if err := reg.AddRule(r); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	if r.ID == "" {
		t.Error("AddRule should assign an ID")
	}

	after, err := reg.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if after.Len() != 1 {
		t.Errorf("expected 1 rule after add, got %d", after.Len())
	}
	if before.Len() != 0 {
		t.Error("earlier snapshot must not change")
	}
}

// TestRegistryAddRuleValidation verifies invalid rules never reach the store
func TestRegistryAddRuleValidation(t *testing.T) {
	v, err := NewValidator(Schema{"priority": FieldString}, []string{"A", "B"})
	if err != nil {
		t.Fatalf("NewValidator() failed: %v", err)
	}
	reg, store := newTestRegistry(t, WithValidator(v))

	bad := []*Rule{
		{ID: "unknown-field", Name: "x", Condition: Equals("owner", "bob"), Classification: "A", Active: true},
		{ID: "bad-label", Name: "x", Condition: Equals("priority", "HIGH"), Classification: "Z", Active: true},
		{ID: "bad-regex", Name: "x", Condition: Compare("priority", OpMatchesRegex, "(["), Classification: "A", Active: true},
	}
	for _, r := range bad {
		if err := reg.AddRule(r); !errors.Is(err, ErrInvalidRule) {
			t.Errorf("AddRule(%s) = %v, want ErrInvalidRule", r.ID, err)
		}
		if _, err := store.Get(r.ID); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("rule %s should not be stored", r.ID)
		}
	}
}

// TestRegistryUpdateAndDelete verifies edits republish the snapshot
func TestRegistryUpdateAndDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)

	r := &Rule{ID: "r1", Name: "One", Condition: Equals("a", "1"), Classification: "A", Active: true}
	if err := reg.AddRule(r); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}

	r.Active = false
	if err := reg.UpdateRule(r); err != nil {
		t.Fatalf("UpdateRule() failed: %v", err)
	}
	set, _ := reg.Snapshot()
	if set.Len() != 0 {
		t.Errorf("deactivated rule should leave the snapshot, got %d", set.Len())
	}

	if err := reg.UpdateRule(&Rule{Name: "x", Condition: Equals("a", "1"), Classification: "A"}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("UpdateRule without ID = %v, want ErrInvalidRule", err)
	}

	if err := reg.DeleteRule("r1"); err != nil {
		t.Fatalf("DeleteRule() failed: %v", err)
	}
	if err := reg.DeleteRule("r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second DeleteRule() = %v, want ErrRuleNotFound", err)
	}
}

// TestRegistryImportExport verifies import creates and updates by ID and export round-trips
func TestRegistryImportExport(t *testing.T) {
	reg, _ := newTestRegistry(t)

	if err := reg.AddRule(&Rule{ID: "network", Name: "Old", Condition: Equals("a", "1"), Classification: "C", Active: true}); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}

	list, err := DecodeRules([]byte(sampleRulesYAML), FormatYAML)
	if err != nil {
		t.Fatalf("DecodeRules() failed: %v", err)
	}

	report, err := reg.Import(list)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if report.Created != 1 || report.Updated != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	exported, err := reg.Export()
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if ids := ruleIDs(exported); !equalStrings(ids, []string{"high-priority", "network"}) {
		t.Errorf("Export() = %v", ids)
	}

	set, _ := reg.Snapshot()
	if set.Len() != 1 {
		t.Errorf("expected only the active imported rule in snapshot, got %d", set.Len())
	}
}

// TestRegistryImportValidatesFirst verifies nothing is written when any rule is invalid
func TestRegistryImportValidatesFirst(t *testing.T) {
	reg, store := newTestRegistry(t)

	list := []*Rule{
		{ID: "good", Name: "good", Condition: Equals("a", "1"), Classification: "A", Active: true},
		{ID: "bad", Name: "bad", Condition: And(), Classification: "A", Active: true},
	}
	if _, err := reg.Import(list); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("Import() = %v, want ErrInvalidRule", err)
	}
	if all, _ := store.List(); len(all) != 0 {
		t.Errorf("expected no rules written, got %d", len(all))
	}

	dup := []*Rule{
		{ID: "same", Name: "a", Condition: Equals("a", "1"), Classification: "A"},
		{ID: "same", Name: "b", Condition: Equals("a", "2"), Classification: "A"},
	}
	if _, err := reg.Import(dup); !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("Import() with duplicate IDs = %v, want ErrDuplicateRule", err)
	}
}

// TestRegistrySnapshotTTL verifies an expired snapshot is reloaded from the store
func TestRegistrySnapshotTTL(t *testing.T) {
	cache := NewInMemorySnapshotCache(CacheConfig{TTL: 20 * time.Millisecond})
	reg, store := newTestRegistry(t, WithSnapshotCache(cache))

	// write behind the registry's back
	if err := store.Add(&Rule{ID: "direct", Name: "d", Condition: Equals("a", "1"), Classification: "A", Active: true}); err != nil {
		t.Fatalf("store.Add() failed: %v", err)
	}

	set, _ := reg.Snapshot()
	if set.Len() != 0 {
		t.Fatalf("cached snapshot should not see the direct write yet")
	}

	time.Sleep(40 * time.Millisecond)

	set, _ = reg.Snapshot()
	if set.Len() != 1 {
		t.Errorf("expired snapshot should reload, got %d rules", set.Len())
	}
}

// TestRegistryConcurrentReadWrite verifies readers always see a complete snapshot during edits
func TestRegistryConcurrentReadWrite(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				r := &Rule{ID: fmt.Sprintf("w%d-%d", w, i), Name: "r", Condition: Equals("a", "1"), Classification: "A", Priority: i, Active: true}
				if err := reg.AddRule(r); err != nil {
					t.Errorf("AddRule() failed: %v", err)
				}
			}
		}(w)
	}

	for rd := 0; rd < 4; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				set, err := reg.Snapshot()
				if err != nil {
					t.Errorf("Snapshot() failed: %v", err)
					return
				}
				prev := -1
				for _, cr := range set.Rules() {
					if cr.Rule.Priority < prev {
						t.Errorf("snapshot out of order")
						return
					}
					prev = cr.Rule.Priority
				}
			}
		}()
	}
	wg.Wait()

	set, _ := reg.Snapshot()
	if set.Len() != 100 {
		t.Errorf("expected 100 rules, got %d", set.Len())
	}
}

// TestRegistryReadOnlyStore verifies edits against a file-backed registry fail cleanly
func TestRegistryReadOnlyStore(t *testing.T) {
	path := t.TempDir() + "/rules.yaml"
	writeRuleFile(t, path, sampleRulesYAML)

	reg, err := NewRegistry(NewFileStore(path))
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	err = reg.AddRule(&Rule{Name: "x", Condition: Equals("a", "1"), Classification: "A"})
	if !errors.Is(err, ErrReadOnlyStore) {
		t.Errorf("AddRule() = %v, want ErrReadOnlyStore", err)
	}

	active, err := reg.ListActiveRules()
	if err != nil || len(active) != 1 {
		t.Errorf("ListActiveRules() = %v, %v", active, err)
	}
}
