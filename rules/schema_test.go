package rules

import (
	"fmt"
	"strings"
	"testing"
)

// TestValidateSchema_Valid verifies a typical record schema is accepted
func TestValidateSchema_Valid(t *testing.T) {
	schema := Schema{
		"priority": FieldString,
		"score":    FieldNumber,
		"approved": FieldBool,
	}
	if err := ValidateSchema(schema); err != nil {
		t.Errorf("expected valid schema, got %v", err)
	}
}

// TestValidateSchema_Empty verifies the schema must declare a field
func TestValidateSchema_Empty(t *testing.T) {
	err := ValidateSchema(Schema{})
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty schema error, got %v", err)
	}
}

// TestValidateSchema_TooManyFields verifies the field limit
func TestValidateSchema_TooManyFields(t *testing.T) {
	schema := Schema{}
	for i := 0; i < 201; i++ {
		schema[fmt.Sprintf("field_%d", i)] = FieldString
	}
	err := ValidateSchema(schema)
	if err == nil || !strings.Contains(err.Error(), "200") {
		t.Errorf("expected field limit error, got %v", err)
	}
}

// TestValidateSchema_InvalidNames verifies identifier rules and reserved words
func TestValidateSchema_InvalidNames(t *testing.T) {
	tests := []struct {
		name  string
		field string
	}{
		{"starts with digit", "1field"},
		{"contains dash", "due-date"},
		{"contains space", "due date"},
		{"reserved", "in"},
		{"too long", strings.Repeat("a", 101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSchema(Schema{tt.field: FieldString}); err == nil {
				t.Errorf("expected error for field %q", tt.field)
			}
		})
	}
}

// TestValidateSchema_InvalidTypes verifies only string, number and bool are accepted
func TestValidateSchema_InvalidTypes(t *testing.T) {
	for _, typ := range []FieldType{"int", "String", " string", "list"} {
		if err := ValidateSchema(Schema{"a": typ}); err == nil {
			t.Errorf("expected error for type %q", typ)
		}
	}
}
