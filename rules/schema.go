package rules

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// FieldType is the declared type of a record attribute.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
)

// Schema declares the attributes a classification record may carry.
// Rule conditions are checked against it when rules are saved.
type Schema map[string]FieldType

const (
	maxSchemaFields   = 200
	maxIdentifierSize = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSchema checks field names and types.
func ValidateSchema(schema Schema) error {
	if len(schema) == 0 {
		return errors.New("schema cannot be empty, must declare at least one field")
	}
	if len(schema) > maxSchemaFields {
		return errors.Newf("schema declares %d fields, maximum allowed is %d", len(schema), maxSchemaFields)
	}

	for name, typ := range schema {
		if err := validateIdentifier(name); err != nil {
			return errors.Wrapf(err, "invalid field name %q", name)
		}
		if strings.TrimSpace(string(typ)) != string(typ) {
			return errors.Newf("field %q has type with leading/trailing whitespace: %q", name, typ)
		}
		if !isValidFieldType(typ) {
			return errors.Newf("field %q has invalid type %q (must be one of: string, number, bool)", name, typ)
		}
	}
	return nil
}

// validateIdentifier enforces ^[a-zA-Z_][a-zA-Z0-9_]*$, 1-100 characters and
// no reserved words, so every field can be declared as an expression variable.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return errors.New("identifier cannot be empty")
	}
	if len(name) > maxIdentifierSize {
		return errors.Newf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierSize)
	}
	if !identifierPattern.MatchString(name) {
		return errors.New("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if isReservedKeyword(name) {
		return errors.Newf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

func isValidFieldType(t FieldType) bool {
	switch t {
	case FieldString, FieldNumber, FieldBool:
		return true
	}
	return false
}

func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":      true,
		"false":     true,
		"null":      true,
		"if":        true,
		"else":      true,
		"for":       true,
		"while":     true,
		"break":     true,
		"continue":  true,
		"return":    true,
		"var":       true,
		"let":       true,
		"const":     true,
		"function":  true,
		"in":        true,
		"as":        true,
		"import":    true,
		"package":   true,
		"namespace": true,
		"loop":      true,
		"void":      true,
	}
	return reservedKeywords[name]
}
