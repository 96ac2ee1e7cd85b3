package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

/*
 * Condition evaluation.
 *
 * Evaluation is total: malformed input never produces an error. A comparison
 * that cannot be decided (absent field, type mismatch, unusable regex) is
 * false and leaves a note that ends up in the evaluation log.
 *
 * Type handling per operator:
 *   - EQUALS/NOT_EQUALS: literal is coerced to the attribute's type
 *   - GREATER_THAN/LESS_THAN: numbers and numeric strings only
 *   - CONTAINS/MATCHES_REGEX: string attributes only
 *
 * AND stops at the first false child, OR at the first true child.
 */

// Outcome is the result of evaluating a condition against a record.
type Outcome struct {
	Matched bool
	// Ambiguity counts the OR and NOT nodes on the branch that satisfied the
	// condition. Zero means the match went through AND/leaf nodes only.
	Ambiguity int
	Notes     []string
}

// Reason summarizes the outcome for an evaluation log entry.
func (o Outcome) Reason() string {
	head := "condition not satisfied"
	if o.Matched {
		head = "condition satisfied"
	}
	if len(o.Notes) == 0 {
		return head
	}
	return head + ": " + strings.Join(o.Notes, "; ")
}

// evalNode is a condition node prepared for evaluation.
type evalNode struct {
	cmp      *Comparison
	re       *regexp.Regexp
	op       LogicOp
	children []*evalNode
	invalid  string
}

// Evaluate decides whether the condition holds for the record. A structurally
// invalid condition never holds.
func Evaluate(n Node, rec Record) Outcome {
	root, err := build(n)
	if err != nil {
		return Outcome{Notes: []string{"invalid condition: " + err.Error()}}
	}
	return root.evaluate(rec)
}

func (e *evalNode) evaluate(rec Record) Outcome {
	var notes []string
	matched, ambiguity := e.eval(rec, &notes)
	if !matched {
		ambiguity = 0
	}
	return Outcome{Matched: matched, Ambiguity: ambiguity, Notes: notes}
}

// build prepares a condition tree. The returned tree is always usable; the
// error reports the first structural problem found.
func build(n Node) (*evalNode, error) {
	var first error
	root := buildNode(n, &first)
	return root, first
}

func buildNode(n Node, first *error) *evalNode {
	fail := func(e *evalNode, format string, args ...any) *evalNode {
		e.invalid = fmt.Sprintf(format, args...)
		if *first == nil {
			*first = errors.New(e.invalid)
		}
		return e
	}

	switch n := n.(type) {
	case *Comparison:
		e := &evalNode{cmp: n}
		if n.Field == "" {
			return fail(e, "comparison has no field")
		}
		switch n.Operator {
		case OpEquals, OpNotEquals, OpContains:
		case OpGreaterThan, OpLessThan:
			if _, ok := parseNumber(n.Value); !ok {
				return fail(e, "%s on %q needs a numeric value, got %q", n.Operator, n.Field, n.Value)
			}
		case OpMatchesRegex:
			pattern := n.Value
			if n.CaseInsensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fail(e, "invalid regex %q for %q: %v", n.Value, n.Field, err)
			}
			e.re = re
		default:
			return fail(e, "unknown comparison operator %q", n.Operator)
		}
		return e

	case *Composite:
		e := &evalNode{op: n.Operator}
		for _, child := range n.Children {
			e.children = append(e.children, buildNode(child, first))
		}
		switch n.Operator {
		case OpAnd, OpOr:
			if len(n.Children) == 0 {
				return fail(e, "%s needs at least one child", n.Operator)
			}
		case OpNot:
			if len(n.Children) != 1 {
				return fail(e, "NOT needs exactly one child, got %d", len(n.Children))
			}
		default:
			return fail(e, "unknown logical operator %q", n.Operator)
		}
		return e

	case nil:
		return fail(&evalNode{}, "condition is empty")

	default:
		return fail(&evalNode{}, "unsupported condition node %T", n)
	}
}

func (e *evalNode) eval(rec Record, notes *[]string) (bool, int) {
	if e.invalid != "" {
		*notes = append(*notes, "invalid condition: "+e.invalid)
		return false, 0
	}
	if e.cmp != nil {
		return e.compare(rec, notes), 0
	}

	switch e.op {
	case OpAnd:
		depth := 0
		for _, child := range e.children {
			ok, d := child.eval(rec, notes)
			if !ok {
				return false, 0
			}
			depth = max(depth, d)
		}
		return true, depth
	case OpOr:
		for _, child := range e.children {
			if ok, d := child.eval(rec, notes); ok {
				return true, d + 1
			}
		}
		return false, 0
	case OpNot:
		ok, _ := e.children[0].eval(rec, notes)
		return !ok, 1
	}
	return false, 0
}

func (e *evalNode) compare(rec Record, notes *[]string) bool {
	c := e.cmp
	value, present := rec[c.Field]
	if !present || value == nil {
		if c.Operator == OpNotEquals && c.Value != Absent {
			return true
		}
		*notes = append(*notes, fmt.Sprintf("field %q not present", c.Field))
		return false
	}

	mismatch := func() bool {
		*notes = append(*notes, fmt.Sprintf("type mismatch: %s cannot apply to %q (%s)", c.Operator, c.Field, kindOf(value)))
		return false
	}

	switch c.Operator {
	case OpEquals, OpNotEquals:
		eq, ok := equalValues(value, c.Value, c.CaseInsensitive)
		if !ok {
			return mismatch()
		}
		if c.Operator == OpNotEquals {
			return !eq
		}
		return eq
	case OpContains:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		if c.CaseInsensitive {
			return strings.Contains(strings.ToLower(s), strings.ToLower(c.Value))
		}
		return strings.Contains(s, c.Value)
	case OpGreaterThan, OpLessThan:
		a, ok := toNumber(value)
		if !ok {
			return mismatch()
		}
		b, _ := parseNumber(c.Value)
		if c.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	case OpMatchesRegex:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		return e.re.MatchString(s)
	}
	return false
}

// equalValues compares an attribute with a literal coerced to the attribute's
// type. The second result is false when the literal cannot be coerced.
func equalValues(value any, literal string, caseInsensitive bool) (bool, bool) {
	switch v := value.(type) {
	case string:
		if caseInsensitive {
			return strings.EqualFold(v, literal), true
		}
		return v == literal, true
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(literal))
		if err != nil {
			return false, false
		}
		return v == b, true
	}
	if n, ok := toNumber(value); ok {
		lit, ok := parseNumber(literal)
		if !ok {
			return false, false
		}
		return n == lit, true
	}
	return false, false
}

// toNumber converts numeric attribute values, including numeric strings, to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumber(n)
	}
	return 0, false
}

// parseNumber parses a numeric literal. Whitespace-only strings are not numbers.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	}
	if _, ok := toNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
