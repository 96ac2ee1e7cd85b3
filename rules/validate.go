package rules

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/cel-go/cel"
)

/*
 * Save-time rule validation.
 *
 * Evaluation treats unknown fields and type mismatches as "no match", so
 * mistakes in a rule would otherwise only show up as silent misses. When a
 * record schema is configured, each condition is rendered as a CEL expression
 * over variables declared from the schema and type-checked:
 *
 *   priority EQUALS "HIGH"        -> priority == "HIGH"
 *   score GREATER_THAN "7"        -> score > 7.0
 *   title CONTAINS "vpn"          -> title.contains("vpn")
 *   NOT (a OR b)                  -> !((a || b))
 *
 * Fields must be declared in the schema before they are rendered; CONTAINS
 * on a number or GREATER_THAN on a string fail overload resolution.
 */

// Validator checks rules before they are stored.
type Validator struct {
	schema Schema
	labels map[string]bool
	env    *cel.Env
}

// NewValidator creates a validator. A nil schema disables field checks and an
// empty label list accepts any non-empty classification.
func NewValidator(schema Schema, labels []string) (*Validator, error) {
	v := &Validator{schema: schema}

	if len(labels) > 0 {
		v.labels = make(map[string]bool, len(labels))
		for _, l := range labels {
			v.labels[l] = true
		}
	}

	if len(schema) > 0 {
		if err := ValidateSchema(schema); err != nil {
			return nil, errors.Wrap(err, "invalid record schema")
		}
		env, err := CreateCELEnvFromSchema(schema)
		if err != nil {
			return nil, err
		}
		v.env = env
	}

	return v, nil
}

// CreateCELEnvFromSchema declares one CEL variable per schema field.
func CreateCELEnvFromSchema(schema Schema) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(schema))
	for name, typ := range schema {
		opts = append(opts, cel.Variable(name, celType(typ)))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}
	return env, nil
}

func celType(t FieldType) *cel.Type {
	switch t {
	case FieldNumber:
		return cel.DoubleType
	case FieldBool:
		return cel.BoolType
	default:
		return cel.StringType
	}
}

// ValidateRule returns an error wrapping ErrInvalidRule when the rule cannot be saved.
func (v *Validator) ValidateRule(r *Rule) error {
	if r == nil {
		return errors.Wrap(ErrInvalidRule, "rule is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.Wrap(ErrInvalidRule, "name is required")
	}
	if strings.TrimSpace(r.Classification) == "" {
		return errors.Wrapf(ErrInvalidRule, "rule %q: classification is required", r.Name)
	}
	if v.labels != nil && !v.labels[r.Classification] {
		return errors.Wrapf(ErrInvalidRule, "rule %q: unknown classification %q", r.Name, r.Classification)
	}

	if _, err := Compile(r); err != nil {
		return errors.Mark(errors.Wrapf(err, "rule %q", r.Name), ErrInvalidRule)
	}

	if v.env == nil {
		return nil
	}

	expr, err := v.render(r.Condition)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "rule %q", r.Name), ErrInvalidRule)
	}
	ast, issues := v.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return errors.Mark(errors.Wrapf(issues.Err(), "rule %q: condition does not fit the record schema", r.Name), ErrInvalidRule)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return errors.Wrapf(ErrInvalidRule, "rule %q: condition is not boolean", r.Name)
	}
	return nil
}

// Expression renders a condition as the CEL expression used for validation.
func (v *Validator) Expression(n Node) (string, error) {
	return v.render(n)
}

func (v *Validator) render(n Node) (string, error) {
	switch n := n.(type) {
	case *Comparison:
		return v.renderComparison(n)
	case *Composite:
		parts := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			p, err := v.render(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		switch n.Operator {
		case OpAnd:
			return "(" + strings.Join(parts, " && ") + ")", nil
		case OpOr:
			return "(" + strings.Join(parts, " || ") + ")", nil
		case OpNot:
			return "!(" + strings.Join(parts, "") + ")", nil
		}
		return "", errors.Newf("unknown logical operator %q", n.Operator)
	}
	return "", errors.New("condition is empty")
}

func (v *Validator) renderComparison(c *Comparison) (string, error) {
	// The field is spliced into CEL source, so only declared names may pass.
	if _, ok := v.schema[c.Field]; !ok {
		return "", errors.Newf("undeclared reference to %q", c.Field)
	}

	switch c.Operator {
	case OpEquals, OpNotEquals:
		if c.Operator == OpNotEquals && c.Value == Absent {
			// presence test, valid for any declared field
			return "true", nil
		}
		lit, err := v.literal(c.Field, c.Value)
		if err != nil {
			return "", err
		}
		op := " == "
		if c.Operator == OpNotEquals {
			op = " != "
		}
		return c.Field + op + lit, nil
	case OpGreaterThan, OpLessThan:
		lit, err := doubleLiteral(c.Value)
		if err != nil {
			return "", errors.Wrapf(err, "%s on %q", c.Operator, c.Field)
		}
		op := " > "
		if c.Operator == OpLessThan {
			op = " < "
		}
		return c.Field + op + lit, nil
	case OpContains:
		return c.Field + ".contains(" + strconv.Quote(c.Value) + ")", nil
	case OpMatchesRegex:
		return c.Field + ".matches(" + strconv.Quote(c.Value) + ")", nil
	}
	return "", errors.Newf("unknown comparison operator %q", c.Operator)
}

// literal renders the comparison value as a literal of the field's declared type.
func (v *Validator) literal(field, value string) (string, error) {
	switch v.schema[field] {
	case FieldNumber:
		lit, err := doubleLiteral(value)
		if err != nil {
			return "", errors.Wrapf(err, "field %q", field)
		}
		return lit, nil
	case FieldBool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return "", errors.Newf("field %q: %q is not a boolean", field, value)
		}
		return strconv.FormatBool(b), nil
	default:
		return strconv.Quote(value), nil
	}
}

func doubleLiteral(value string) (string, error) {
	f, ok := parseNumber(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.Newf("%q is not a finite number", value)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}
