// Package classification assigns labels to records using an ordered rule
// snapshot. Results are identified by a deterministic hash of the record and
// never change once issued.
package classification

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/liamcoop/classifier/rules"
)

var (
	// ErrNotFound indicates no result exists for the requested hash.
	ErrNotFound = errors.New("classification result not found")

	// ErrInvalidRecord indicates the input record was rejected before evaluation.
	ErrInvalidRecord = errors.New("invalid record")
)

// Record is the attribute map being classified.
type Record = rules.Record

// LogEntry records one rule considered during classification.
type LogEntry struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Matched  bool   `json:"matched"`
	Reason   string `json:"reason"`
}

// Result is an issued classification. It is immutable once stored.
type Result struct {
	Hash           string     `json:"hash"`
	Classification string     `json:"classification"`
	Confidence     float64    `json:"confidence"`
	MatchedRuleID  *string    `json:"matchedRuleId"`
	EvaluatedAt    time.Time  `json:"evaluatedAt"`
	EvaluationLog  []LogEntry `json:"evaluationLog,omitempty"`
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	c := *r
	if r.MatchedRuleID != nil {
		id := *r.MatchedRuleID
		c.MatchedRuleID = &id
	}
	if r.EvaluationLog != nil {
		c.EvaluationLog = make([]LogEntry, len(r.EvaluationLog))
		copy(c.EvaluationLog, r.EvaluationLog)
	}
	return &c
}

// WithoutLog returns a copy with the evaluation log removed.
func (r *Result) WithoutLog() *Result {
	c := r.Clone()
	c.EvaluationLog = nil
	return c
}

// ValidateRecord rejects empty records, empty attribute names and values
// that are not scalars.
func ValidateRecord(rec Record) error {
	if len(rec) == 0 {
		return errors.Wrap(ErrInvalidRecord, "record is empty")
	}
	for k, v := range rec {
		if k == "" {
			return errors.Wrap(ErrInvalidRecord, "attribute name is empty")
		}
		if _, ok := canonicalValue(v); !ok {
			return errors.Wrapf(ErrInvalidRecord, "attribute %q has unsupported value type %T", k, v)
		}
	}
	return nil
}
