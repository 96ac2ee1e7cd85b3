package classification

import (
	"time"

	"github.com/liamcoop/classifier/rules"
)

// DefaultLabel is assigned when no rule matches.
const DefaultLabel = "C"

// Options controls label fallback and scoring.
type Options struct {
	DefaultLabel string
	Confidence   ConfidenceModel
}

// DefaultOptions returns fallback label "C" and the default confidence model.
func DefaultOptions() Options {
	return Options{DefaultLabel: DefaultLabel, Confidence: DefaultConfidenceModel()}
}

// Classify evaluates the snapshot's rules in order and returns the first
// match. Every rule considered gets a log entry, including invalid rules,
// which are skipped. The returned result has no hash; callers that issue
// results set it.
func Classify(rec Record, set *rules.RuleSet, opts Options) *Result {
	if opts.DefaultLabel == "" {
		opts.DefaultLabel = DefaultLabel
	}

	res := &Result{EvaluatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	compiled := set.Rules()
	res.EvaluationLog = make([]LogEntry, 0, len(compiled))

	for _, cr := range compiled {
		entry := LogEntry{RuleID: cr.Rule.ID, RuleName: cr.Rule.Name}

		if cr.Err != nil {
			entry.Reason = "invalid condition: " + cr.Err.Error()
			res.EvaluationLog = append(res.EvaluationLog, entry)
			continue
		}

		out := cr.Evaluate(rec)
		entry.Matched = out.Matched
		entry.Reason = out.Reason()
		res.EvaluationLog = append(res.EvaluationLog, entry)

		if out.Matched {
			id := cr.Rule.ID
			res.Classification = cr.Rule.Classification
			res.MatchedRuleID = &id
			res.Confidence = opts.Confidence.Matched(out.Ambiguity)
			return res
		}
	}

	res.Classification = opts.DefaultLabel
	res.Confidence = opts.Confidence.NoMatch()
	return res
}

// ClassifyRules orders an unsorted rule list and classifies against it.
func ClassifyRules(rec Record, list []*rules.Rule, opts Options) *Result {
	return Classify(rec, rules.NewRuleSet(list), opts)
}
