package classification

import (
	"sync"
	"sync/atomic"
)

// Statistics aggregates classification counters. All methods are safe for
// concurrent use; increments are never lost.
type Statistics struct {
	total       atomic.Int64
	activeRules atomic.Int64
	byLabel     sync.Map // label -> *atomic.Int64
}

// StatisticsSnapshot is a point-in-time read of the counters.
type StatisticsSnapshot struct {
	TotalClassifications int64            `json:"totalClassifications"`
	CountsByLabel        map[string]int64 `json:"countsByLabel"`
	ActiveRuleCount      int64            `json:"activeRuleCount"`
}

// NewStatistics creates an empty aggregator.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// RecordClassification counts one classification with the given label.
func (s *Statistics) RecordClassification(label string) {
	counter, ok := s.byLabel.Load(label)
	if !ok {
		counter, _ = s.byLabel.LoadOrStore(label, new(atomic.Int64))
	}
	counter.(*atomic.Int64).Add(1)
	s.total.Add(1)
}

// SetActiveRuleCount records the size of the current rule snapshot.
func (s *Statistics) SetActiveRuleCount(n int) {
	s.activeRules.Store(int64(n))
}

// Snapshot reads the counters. Label counts and the total are read
// separately, so a snapshot taken during increments may differ by the
// increments in flight.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	snap := StatisticsSnapshot{
		CountsByLabel:   make(map[string]int64),
		ActiveRuleCount: s.activeRules.Load(),
	}
	s.byLabel.Range(func(k, v any) bool {
		snap.CountsByLabel[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	snap.TotalClassifications = s.total.Load()
	return snap
}
