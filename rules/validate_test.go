package rules

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func testSchema() Schema {
	return Schema{
		"priority": FieldString,
		"title":    FieldString,
		"score":    FieldNumber,
		"approved": FieldBool,
	}
}

// TestValidatorAcceptsWellTypedRules verifies conditions that fit the schema pass
func TestValidatorAcceptsWellTypedRules(t *testing.T) {
	v, err := NewValidator(testSchema(), []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("NewValidator() failed: %v", err)
	}

	conds := []Node{
		Equals("priority", "HIGH"),
		Compare("score", OpGreaterThan, "7"),
		Equals("score", "3"),
		Equals("approved", "false"),
		Compare("title", OpContains, "vpn"),
		Compare("title", OpMatchesRegex, `^VPN\s`),
		Compare("score", OpNotEquals, Absent),
		And(Equals("priority", "HIGH"), Or(Compare("score", OpLessThan, "2.5"), Not(Equals("approved", "true")))),
	}

	for _, cond := range conds {
		r := &Rule{ID: "r", Name: "Rule", Condition: cond, Classification: "A"}
		if err := v.ValidateRule(r); err != nil {
			t.Errorf("ValidateRule(%s) failed: %v", cond, err)
		}
	}
}

// TestValidatorRejectsSchemaViolations verifies type errors are caught at save time
func TestValidatorRejectsSchemaViolations(t *testing.T) {
	v, err := NewValidator(testSchema(), nil)
	if err != nil {
		t.Fatalf("NewValidator() failed: %v", err)
	}

	tests := []struct {
		name string
		cond Node
	}{
		{"unknown field", Equals("owner", "bob")},
		{"contains on number", Compare("score", OpContains, "7")},
		{"regex on bool", Compare("approved", OpMatchesRegex, "t")},
		{"greater than on string", Compare("priority", OpGreaterThan, "1")},
		{"bool literal", Equals("approved", "maybe")},
		{"number literal", Equals("score", "high")},
		{"presence of unknown field", Compare("owner", OpNotEquals, Absent)},
		{"field smuggling an expression", Equals("true || priority", "HIGH")},
		{"field with trailing space", Equals("priority ", "HIGH")},
		{"field with call syntax", Compare("priority.size() > 0 || priority", OpContains, "x")},
		{"ordering on smuggled field", Compare("1.0 < 2.0 || score", OpGreaterThan, "1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Rule{ID: "r", Name: "Rule", Condition: tt.cond, Classification: "A"}
			err := v.ValidateRule(r)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.cond)
			}
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}

// TestValidatorLabelsAndFields verifies required rule fields and configured labels
func TestValidatorLabelsAndFields(t *testing.T) {
	v, err := NewValidator(nil, []string{"A", "B"})
	if err != nil {
		t.Fatalf("NewValidator() failed: %v", err)
	}

	tests := []struct {
		name string
		rule *Rule
		want string
	}{
		{"nil rule", nil, "nil"},
		{"no name", &Rule{Condition: Equals("a", "1"), Classification: "A"}, "name"},
		{"no classification", &Rule{Name: "r", Condition: Equals("a", "1")}, "classification is required"},
		{"unknown label", &Rule{Name: "r", Condition: Equals("a", "1"), Classification: "Z"}, "unknown classification"},
		{"structural error", &Rule{Name: "r", Condition: Not(nil), Classification: "A"}, "condition is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRule(tt.rule)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("expected ErrInvalidRule, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	// without a schema any field is accepted
	if err := v.ValidateRule(&Rule{Name: "r", Condition: Equals("anything", "1"), Classification: "B"}); err != nil {
		t.Errorf("expected rule to pass without schema, got %v", err)
	}
}

// TestValidatorExpression verifies the rendered expression
func TestValidatorExpression(t *testing.T) {
	v, err := NewValidator(testSchema(), nil)
	if err != nil {
		t.Fatalf("NewValidator() failed: %v", err)
	}

	expr, err := v.Expression(And(Equals("priority", "HIGH"), Not(Compare("score", OpGreaterThan, "7"))))
	if err != nil {
		t.Fatalf("Expression() failed: %v", err)
	}
	want := `(priority == "HIGH" && !(score > 7.0))`
	if expr != want {
		t.Errorf("Expression() = %s, want %s", expr, want)
	}
}

// TestNewValidatorRejectsBadSchema verifies the schema is validated up front
func TestNewValidatorRejectsBadSchema(t *testing.T) {
	if _, err := NewValidator(Schema{"bad-name": FieldString}, nil); err == nil {
		t.Error("expected error for invalid schema")
	}
}
