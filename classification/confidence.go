package classification

// Confidence defaults.
const (
	DefaultConfidenceFloor    = 0.5
	DefaultFallbackConfidence = 0.3
	maxFallbackConfidence     = 0.5
)

// ConfidenceModel scores a classification.
//
// A match whose winning branch contains no OR or NOT scores 1.0. Each OR or
// NOT on the winning branch adds one to the ambiguity d, and the score is
// Floor + (1-Floor)/(d+1), which stays above Floor. No match scores Fallback,
// which is kept at or below 0.5 and below Floor.
type ConfidenceModel struct {
	Floor    float64
	Fallback float64
}

// DefaultConfidenceModel returns Floor 0.5 and Fallback 0.3.
func DefaultConfidenceModel() ConfidenceModel {
	return ConfidenceModel{Floor: DefaultConfidenceFloor, Fallback: DefaultFallbackConfidence}
}

// normalized replaces out-of-range parameters so the ordering guarantee holds.
func (m ConfidenceModel) normalized() ConfidenceModel {
	if m.Floor <= 0 || m.Floor >= 1 {
		m.Floor = DefaultConfidenceFloor
	}
	if m.Fallback < 0 || m.Fallback > maxFallbackConfidence {
		m.Fallback = DefaultFallbackConfidence
	}
	if m.Fallback >= m.Floor {
		m.Fallback = m.Floor / 2
	}
	return m
}

// Matched scores a rule match with the given ambiguity.
func (m ConfidenceModel) Matched(ambiguity int) float64 {
	if ambiguity <= 0 {
		return 1.0
	}
	m = m.normalized()
	return m.Floor + (1-m.Floor)/float64(ambiguity+1)
}

// NoMatch scores the fallback classification.
func (m ConfidenceModel) NoMatch() float64 {
	return m.normalized().Fallback
}
