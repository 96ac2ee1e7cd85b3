package rules

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
)

// CompiledRule is a rule with its condition prepared for evaluation.
// Err is set when the condition is structurally invalid; such a rule never matches.
type CompiledRule struct {
	Rule *Rule
	Err  error
	root *evalNode
}

// Compile validates the rule's condition and prepares it for evaluation.
// The returned CompiledRule is never nil, so callers that tolerate bad rules
// can keep it and report Err later.
func Compile(r *Rule) (*CompiledRule, error) {
	root, err := build(r.Condition)
	cr := &CompiledRule{Rule: r, root: root}
	if err != nil {
		cr.Err = errors.Wrapf(err, "rule %s", r.ID)
		return cr, cr.Err
	}
	return cr, nil
}

// Evaluate runs the compiled condition against the record.
func (cr *CompiledRule) Evaluate(rec Record) Outcome {
	if cr.Err != nil {
		return Outcome{Notes: []string{"invalid condition: " + cr.Err.Error()}}
	}
	return cr.root.evaluate(rec)
}

// RuleSet is an immutable snapshot of the active rules, ordered by priority
// ascending with ties broken by rule ID ascending.
type RuleSet struct {
	rules   []*CompiledRule
	builtAt time.Time
}

// NewRuleSet compiles the active rules into an ordered snapshot. Rules are
// cloned so later edits to the inputs do not leak into the snapshot.
func NewRuleSet(list []*Rule) *RuleSet {
	compiled := make([]*CompiledRule, 0, len(list))
	for _, r := range list {
		if r == nil || !r.Active {
			continue
		}
		cr, _ := Compile(r.Clone())
		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		a, b := compiled[i].Rule, compiled[j].Rule
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return lessID(a.ID, b.ID)
	})

	return &RuleSet{rules: compiled, builtAt: time.Now()}
}

// Rules returns the ordered rules. The slice is a copy; the rules are shared
// and must not be modified.
func (s *RuleSet) Rules() []*CompiledRule {
	if s == nil {
		return nil
	}
	out := make([]*CompiledRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of active rules in the snapshot.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Invalid returns the rules whose condition failed to compile.
func (s *RuleSet) Invalid() []*CompiledRule {
	var out []*CompiledRule
	for _, cr := range s.Rules() {
		if cr.Err != nil {
			out = append(out, cr)
		}
	}
	return out
}

// BuiltAt returns when the snapshot was built.
func (s *RuleSet) BuiltAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.builtAt
}
