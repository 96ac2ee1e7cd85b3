package rules

import "github.com/cockroachdb/errors"

// Sentinel errors for rule management. Wrap them to add context and test
// with errors.Is.
var (
	// ErrRuleNotFound indicates no rule exists with the requested ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule indicates a rule with the same ID already exists.
	ErrDuplicateRule = errors.New("rule already exists")

	// ErrInvalidRule indicates a rule failed save-time validation.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrReadOnlyStore indicates the store does not accept edits.
	ErrReadOnlyStore = errors.New("rule store is read-only")
)
