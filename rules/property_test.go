package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var propertyOps = []CompareOp{OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpMatchesRegex, CompareOp("BOGUS")}

// recordValue picks an attribute value of varying type from the generated inputs.
func recordValue(kind int, s string, n float64) any {
	switch kind % 5 {
	case 0:
		return s
	case 1:
		return n
	case 2:
		return int(n)
	case 3:
		return n > 0
	default:
		return nil
	}
}

// Property-based test: evaluation never panics regardless of input
func TestEvaluate_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluation never panics", prop.ForAll(
		func(opIdx int, value string, kind int, s string, n float64, depth int, negate bool) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Evaluate() panicked: %v", r)
				}
			}()

			var cond Node = Compare("f", propertyOps[opIdx%len(propertyOps)], value)
			for i := 0; i < depth; i++ {
				switch {
				case negate && i%2 == 0:
					cond = Not(cond)
				case i%3 == 0:
					cond = Or(Equals("g", s), cond)
				default:
					cond = And(cond, Compare("f", OpNotEquals, Absent))
				}
			}

			rec := Record{"f": recordValue(kind, s, n)}
			_ = Evaluate(cond, rec)
			_ = Evaluate(cond, Record{})
			return true
		},
		gen.IntRange(0, 100),
		gen.AnyString(),
		gen.IntRange(0, 100),
		gen.AnyString(),
		gen.Float64(),
		gen.IntRange(0, 6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: evaluation is deterministic
func TestEvaluate_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same condition and record give the same outcome", prop.ForAll(
		func(opIdx int, value string, kind int, s string, n float64) bool {
			cond := Or(Compare("f", propertyOps[opIdx%len(propertyOps)], value), Not(Equals("f", s)))
			rec := Record{"f": recordValue(kind, s, n)}

			a := Evaluate(cond, rec)
			b := Evaluate(cond, rec)
			return a.Matched == b.Matched && a.Ambiguity == b.Ambiguity && a.Reason() == b.Reason()
		},
		gen.IntRange(0, 100),
		gen.AlphaString(),
		gen.IntRange(0, 100),
		gen.AlphaString(),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
