package classification

import (
	"strings"
	"testing"

	"github.com/liamcoop/classifier/rules"
)

func scenarioRules() []*rules.Rule {
	return []*rules.Rule{
		{ID: "rule-1", Name: "High priority", Condition: rules.Equals("priority", "HIGH"), Classification: "A", Priority: 1, Active: true},
		{ID: "rule-2", Name: "New creation", Condition: rules.Equals("type", "CREATE_NEW"), Classification: "B", Priority: 2, Active: true},
	}
}

// TestClassifyFirstMatchScenario verifies the highest priority matching rule wins with full confidence
func TestClassifyFirstMatchScenario(t *testing.T) {
	rec := Record{"priority": "HIGH", "type": "CREATE_NEW"}

	res := ClassifyRules(rec, scenarioRules(), DefaultOptions())

	if res.Classification != "A" {
		t.Errorf("classification = %s, want A", res.Classification)
	}
	if res.MatchedRuleID == nil || *res.MatchedRuleID != "rule-1" {
		t.Errorf("matchedRuleId = %v, want rule-1", res.MatchedRuleID)
	}
	if res.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", res.Confidence)
	}
	if len(res.EvaluationLog) != 1 {
		t.Errorf("evaluation should stop at the first match, got %d log entries", len(res.EvaluationLog))
	}
}

// TestClassifyFallbackScenario verifies the default label and low confidence when nothing matches
func TestClassifyFallbackScenario(t *testing.T) {
	res := ClassifyRules(Record{"priority": "LOW"}, scenarioRules(), DefaultOptions())

	if res.Classification != DefaultLabel {
		t.Errorf("classification = %s, want %s", res.Classification, DefaultLabel)
	}
	if res.MatchedRuleID != nil {
		t.Errorf("matchedRuleId = %v, want nil", *res.MatchedRuleID)
	}
	if res.Confidence > 0.5 {
		t.Errorf("fallback confidence %v exceeds 0.5", res.Confidence)
	}
	if len(res.EvaluationLog) != 2 {
		t.Fatalf("expected a log entry per rule, got %d", len(res.EvaluationLog))
	}
	for _, entry := range res.EvaluationLog {
		if entry.Matched {
			t.Errorf("entry %s should not match", entry.RuleID)
		}
	}
	if !strings.Contains(res.EvaluationLog[1].Reason, `field "type" not present`) {
		t.Errorf("expected absence note, got %q", res.EvaluationLog[1].Reason)
	}
}

// TestClassifyEmptyRuleSet verifies an empty snapshot falls back
func TestClassifyEmptyRuleSet(t *testing.T) {
	opts := Options{DefaultLabel: "Z", Confidence: DefaultConfidenceModel()}
	res := Classify(Record{"a": "1"}, rules.NewRuleSet(nil), opts)

	if res.Classification != "Z" || res.Confidence > 0.5 || len(res.EvaluationLog) != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	res = Classify(Record{"a": "1"}, nil, Options{})
	if res.Classification != DefaultLabel {
		t.Errorf("nil snapshot should fall back to %s, got %s", DefaultLabel, res.Classification)
	}
}

// TestClassifyPriorityOrdering verifies priority wins regardless of input order
func TestClassifyPriorityOrdering(t *testing.T) {
	low := &rules.Rule{ID: "z-first", Name: "p1", Condition: rules.Equals("a", "1"), Classification: "P1", Priority: 1, Active: true}
	high := &rules.Rule{ID: "a-second", Name: "p2", Condition: rules.Equals("a", "1"), Classification: "P2", Priority: 2, Active: true}

	for _, list := range [][]*rules.Rule{{low, high}, {high, low}} {
		res := ClassifyRules(Record{"a": "1"}, list, DefaultOptions())
		if res.Classification != "P1" {
			t.Errorf("priority 1 should win, got %s", res.Classification)
		}
	}
}

// TestClassifyTieBreak verifies equal priorities resolve by ascending rule ID
func TestClassifyTieBreak(t *testing.T) {
	b := &rules.Rule{ID: "rule-b", Name: "b", Condition: rules.Equals("a", "1"), Classification: "B", Priority: 5, Active: true}
	a := &rules.Rule{ID: "rule-a", Name: "a", Condition: rules.Equals("a", "1"), Classification: "A", Priority: 5, Active: true}

	for i := 0; i < 20; i++ {
		list := []*rules.Rule{b, a}
		if i%2 == 1 {
			list = []*rules.Rule{a, b}
		}
		res := ClassifyRules(Record{"a": "1"}, list, DefaultOptions())
		if res.Classification != "A" || *res.MatchedRuleID != "rule-a" {
			t.Fatalf("run %d: tie should resolve to rule-a, got %s", i, *res.MatchedRuleID)
		}
	}
}

// TestClassifySkipsInvalidRule verifies a bad regex is logged and later rules still run
func TestClassifySkipsInvalidRule(t *testing.T) {
	list := []*rules.Rule{
		{ID: "bad", Name: "Broken regex", Condition: rules.Compare("title", rules.OpMatchesRegex, "(["), Classification: "X", Priority: 1, Active: true},
		{ID: "good", Name: "VPN", Condition: rules.Compare("title", rules.OpContains, "VPN"), Classification: "B", Priority: 2, Active: true},
	}

	res := ClassifyRules(Record{"title": "VPN access"}, list, DefaultOptions())

	if res.Classification != "B" {
		t.Errorf("classification = %s, want B", res.Classification)
	}
	if len(res.EvaluationLog) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(res.EvaluationLog))
	}
	first := res.EvaluationLog[0]
	if first.RuleID != "bad" || first.Matched || !strings.HasPrefix(first.Reason, "invalid condition") {
		t.Errorf("unexpected entry for invalid rule: %+v", first)
	}
}

// TestClassifyConfidenceForAmbiguousMatch verifies OR/NOT branches score between fallback and 1.0
func TestClassifyConfidenceForAmbiguousMatch(t *testing.T) {
	list := []*rules.Rule{
		{ID: "or", Name: "or", Condition: rules.Or(rules.Equals("a", "x"), rules.Equals("a", "1")), Classification: "A", Priority: 1, Active: true},
	}
	opts := DefaultOptions()

	res := ClassifyRules(Record{"a": "1"}, list, opts)
	if res.Confidence >= 1.0 || res.Confidence <= opts.Confidence.NoMatch() {
		t.Errorf("ambiguous match confidence %v should be in (fallback, 1)", res.Confidence)
	}
	if res.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75", res.Confidence)
	}
}

// TestClassifyDeterministic verifies repeated classification yields the same outcome
func TestClassifyDeterministic(t *testing.T) {
	list := append(scenarioRules(),
		&rules.Rule{ID: "rule-0", Name: "not low", Condition: rules.Not(rules.Equals("priority", "LOW")), Classification: "D", Priority: 2, Active: true},
	)
	rec := Record{"priority": "MEDIUM", "type": "CREATE_NEW"}
	h := NewHasher(nil)

	first := ClassifyRules(rec, list, DefaultOptions())
	for i := 0; i < 10; i++ {
		again := ClassifyRules(rec, list, DefaultOptions())
		if again.Classification != first.Classification || again.Confidence != first.Confidence || *again.MatchedRuleID != *first.MatchedRuleID {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
		if h.HashOf(rec) != h.HashOf(rec) {
			t.Fatal("hash is not stable")
		}
	}
	if *first.MatchedRuleID != "rule-0" {
		t.Errorf("expected rule-0 to win the priority 2 tie, got %s", *first.MatchedRuleID)
	}
}
