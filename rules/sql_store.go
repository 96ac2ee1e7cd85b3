package rules

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/liamcoop/classifier/internal/db"
)

// SQLRuleStore implements RuleStore on SQLite or PostgreSQL. Conditions are
// stored as JSON text.
type SQLRuleStore struct {
	q *db.Queries
}

// NewSQLRuleStore creates a RuleStore over the named queries.
func NewSQLRuleStore(q *db.Queries) *SQLRuleStore {
	return &SQLRuleStore{q: q}
}

type ruleRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	ConditionJSON  string    `db:"condition_json"`
	Classification string    `db:"classification"`
	Priority       int       `db:"priority"`
	Active         bool      `db:"active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// rule converts a row. A condition that no longer decodes is left nil so the
// rule is reported as invalid at compile time instead of hiding every rule.
func (r ruleRow) rule() *Rule {
	cond, err := UnmarshalCondition([]byte(r.ConditionJSON))
	if err != nil {
		cond = nil
	}
	return &Rule{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Condition:      cond,
		Classification: r.Classification,
		Priority:       r.Priority,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// Add inserts a new rule.
func (s *SQLRuleStore) Add(rule *Rule) error {
	var count int
	if err := s.q.Get("rule-exists", &count, rule.ID); err != nil {
		return errors.Wrap(err, "failed to check rule existence")
	}
	if count > 0 {
		return errors.Wrapf(ErrDuplicateRule, "rule with ID %s", rule.ID)
	}

	cond, err := MarshalCondition(rule.Condition)
	if err != nil {
		return errors.Wrap(err, "failed to encode condition")
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.q.Exec("insert-rule",
		rule.ID, rule.Name, rule.Description, string(cond), rule.Classification,
		rule.Priority, rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert rule")
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *SQLRuleStore) Get(id string) (*Rule, error) {
	var row ruleRow
	err := s.q.Get("get-rule", &row, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRuleNotFound, "rule with ID %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rule")
	}
	return row.rule(), nil
}

// List returns all rules ordered by priority, then ID.
func (s *SQLRuleStore) List() ([]*Rule, error) {
	var rows []ruleRow
	if err := s.q.Select("list-rules", &rows); err != nil {
		return nil, errors.Wrap(err, "failed to list rules")
	}
	return toRules(rows), nil
}

// ListActive returns active rules ordered by priority, then ID.
func (s *SQLRuleStore) ListActive() ([]*Rule, error) {
	var rows []ruleRow
	if err := s.q.Select("list-active-rules", &rows, true); err != nil {
		return nil, errors.Wrap(err, "failed to list active rules")
	}
	return toRules(rows), nil
}

// Update modifies an existing rule. CreatedAt is preserved.
func (s *SQLRuleStore) Update(rule *Rule) error {
	existing, err := s.Get(rule.ID)
	if err != nil {
		return err
	}

	cond, err := MarshalCondition(rule.Condition)
	if err != nil {
		return errors.Wrap(err, "failed to encode condition")
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	result, err := s.q.Exec("update-rule",
		rule.Name, rule.Description, string(cond), rule.Classification,
		rule.Priority, rule.Active, rule.UpdatedAt, rule.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update rule")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrapf(ErrRuleNotFound, "rule with ID %s", rule.ID)
	}
	return nil
}

// Delete removes a rule.
func (s *SQLRuleStore) Delete(id string) error {
	result, err := s.q.Exec("delete-rule", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete rule")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrapf(ErrRuleNotFound, "rule with ID %s", id)
	}
	return nil
}

func toRules(rows []ruleRow) []*Rule {
	out := make([]*Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rule())
	}
	// SQL orders ties on id lexically
	sortRules(out)
	return out
}
