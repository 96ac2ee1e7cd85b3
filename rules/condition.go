package rules

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// CompareOp is the operator of a Comparison leaf.
type CompareOp string

const (
	OpEquals       CompareOp = "EQUALS"
	OpNotEquals    CompareOp = "NOT_EQUALS"
	OpContains     CompareOp = "CONTAINS"
	OpGreaterThan  CompareOp = "GREATER_THAN"
	OpLessThan     CompareOp = "LESS_THAN"
	OpMatchesRegex CompareOp = "MATCHES_REGEX"
)

// LogicOp is the operator of a Composite node.
type LogicOp string

const (
	OpAnd LogicOp = "AND"
	OpOr  LogicOp = "OR"
	OpNot LogicOp = "NOT"
)

// Absent is the comparison value that stands for "no value". A NOT_EQUALS
// against Absent is only satisfied by a field that is present.
const Absent = ""

// Node is a condition tree node. It is either a *Comparison or a *Composite.
type Node interface {
	String() string
	node()
}

// Comparison is a leaf comparing one record attribute against a literal.
type Comparison struct {
	Field           string
	Operator        CompareOp
	Value           string
	CaseInsensitive bool
}

// Composite combines child nodes with a logical operator.
type Composite struct {
	Operator LogicOp
	Children []Node
}

func (*Comparison) node() {}
func (*Composite) node()  {}

func (c *Comparison) String() string {
	return c.Field + " " + string(c.Operator) + " " + strconv.Quote(c.Value)
}

func (c *Composite) String() string {
	if c.Operator == OpNot {
		if len(c.Children) == 1 && c.Children[0] != nil {
			return "NOT (" + c.Children[0].String() + ")"
		}
		return "NOT ()"
	}
	parts := make([]string, 0, len(c.Children))
	for _, child := range c.Children {
		if child == nil {
			parts = append(parts, "<nil>")
			continue
		}
		parts = append(parts, child.String())
	}
	return "(" + strings.Join(parts, " "+string(c.Operator)+" ") + ")"
}

// Equals builds an EQUALS comparison.
func Equals(field, value string) *Comparison {
	return &Comparison{Field: field, Operator: OpEquals, Value: value}
}

// Compare builds a comparison with an arbitrary operator.
func Compare(field string, op CompareOp, value string) *Comparison {
	return &Comparison{Field: field, Operator: op, Value: value}
}

// And combines children so that all must hold.
func And(children ...Node) *Composite {
	return &Composite{Operator: OpAnd, Children: children}
}

// Or combines children so that at least one must hold.
func Or(children ...Node) *Composite {
	return &Composite{Operator: OpOr, Children: children}
}

// Not negates a single child.
func Not(child Node) *Composite {
	return &Composite{Operator: OpNot, Children: []Node{child}}
}

func parseCompareOp(s string) (CompareOp, error) {
	switch op := CompareOp(strings.ToUpper(strings.TrimSpace(s))); op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpMatchesRegex:
		return op, nil
	}
	return "", errors.Newf("unknown comparison operator %q", s)
}

func parseLogicOp(s string) (LogicOp, error) {
	switch op := LogicOp(strings.ToUpper(strings.TrimSpace(s))); op {
	case OpAnd, OpOr, OpNot:
		return op, nil
	}
	return "", errors.Newf("unknown logical operator %q", s)
}

// conditionDoc is the serialized form shared by JSON, YAML and the database.
// A document with children is a composite, otherwise a comparison.
type conditionDoc struct {
	Field           string          `json:"field,omitempty" yaml:"field,omitempty"`
	Operator        string          `json:"operator" yaml:"operator"`
	Value           string          `json:"value,omitempty" yaml:"value,omitempty"`
	CaseInsensitive bool            `json:"caseInsensitive,omitempty" yaml:"caseInsensitive,omitempty"`
	Children        []*conditionDoc `json:"children,omitempty" yaml:"children,omitempty"`
}

func docOf(n Node) *conditionDoc {
	switch n := n.(type) {
	case *Comparison:
		return &conditionDoc{
			Field:           n.Field,
			Operator:        string(n.Operator),
			Value:           n.Value,
			CaseInsensitive: n.CaseInsensitive,
		}
	case *Composite:
		doc := &conditionDoc{Operator: string(n.Operator), Children: make([]*conditionDoc, 0, len(n.Children))}
		for _, child := range n.Children {
			doc.Children = append(doc.Children, docOf(child))
		}
		return doc
	default:
		return nil
	}
}

func (d *conditionDoc) node() (Node, error) {
	if d == nil {
		return nil, errors.New("condition is empty")
	}
	if lop, err := parseLogicOp(d.Operator); err == nil {
		if d.Field != "" {
			return nil, errors.Newf("logical operator %s cannot reference field %q", lop, d.Field)
		}
		comp := &Composite{Operator: lop, Children: make([]Node, 0, len(d.Children))}
		for i, child := range d.Children {
			n, err := child.node()
			if err != nil {
				return nil, errors.Wrapf(err, "%s child %d", lop, i)
			}
			comp.Children = append(comp.Children, n)
		}
		return comp, nil
	}

	cop, err := parseCompareOp(d.Operator)
	if err != nil {
		return nil, err
	}
	if len(d.Children) > 0 {
		return nil, errors.Newf("comparison operator %s cannot have children", cop)
	}
	return &Comparison{
		Field:           d.Field,
		Operator:        cop,
		Value:           d.Value,
		CaseInsensitive: d.CaseInsensitive,
	}, nil
}

// MarshalCondition encodes a condition tree as JSON.
func MarshalCondition(n Node) ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	return json.Marshal(docOf(n))
}

// UnmarshalCondition decodes a JSON condition tree.
func UnmarshalCondition(data []byte) (Node, error) {
	var doc *conditionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode condition")
	}
	return doc.node()
}
