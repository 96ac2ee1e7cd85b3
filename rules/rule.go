package rules

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Rule assigns Classification to every record its Condition matches.
// Lower Priority values are evaluated first.
type Rule struct {
	ID             string
	Name           string
	Description    string
	Condition      Node
	Classification string
	Priority       int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Record is the attribute map a rule is evaluated against. Values are
// scalars: strings, numbers, booleans or nil.
type Record map[string]any

// ruleDoc is the serialized rule used by the HTTP API, rule files and import/export.
// A missing "active" flag means the rule is active.
type ruleDoc struct {
	ID             string        `json:"id" yaml:"id,omitempty"`
	Name           string        `json:"name" yaml:"name"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	Condition      *conditionDoc `json:"condition" yaml:"condition"`
	Classification string        `json:"classification" yaml:"classification"`
	Priority       int           `json:"priority" yaml:"priority"`
	Active         *bool         `json:"active,omitempty" yaml:"active,omitempty"`
	CreatedAt      *time.Time    `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt      *time.Time    `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

func (r *Rule) doc() ruleDoc {
	active := r.Active
	d := ruleDoc{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Condition:      docOf(r.Condition),
		Classification: r.Classification,
		Priority:       r.Priority,
		Active:         &active,
	}
	if !r.CreatedAt.IsZero() {
		created := r.CreatedAt
		d.CreatedAt = &created
	}
	if !r.UpdatedAt.IsZero() {
		updated := r.UpdatedAt
		d.UpdatedAt = &updated
	}
	return d
}

func (r *Rule) fromDoc(d ruleDoc) error {
	cond, err := d.Condition.node()
	if err != nil {
		return errors.Wrapf(err, "rule %q", d.Name)
	}
	*r = Rule{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Condition:      cond,
		Classification: d.Classification,
		Priority:       d.Priority,
		Active:         d.Active == nil || *d.Active,
	}
	if d.CreatedAt != nil {
		r.CreatedAt = *d.CreatedAt
	}
	if d.UpdatedAt != nil {
		r.UpdatedAt = *d.UpdatedAt
	}
	return nil
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.doc())
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var d ruleDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	return r.fromDoc(d)
}

func (r Rule) MarshalYAML() (any, error) {
	return r.doc(), nil
}

func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var d ruleDoc
	if err := value.Decode(&d); err != nil {
		return err
	}
	return r.fromDoc(d)
}

// Clone returns a copy of the rule that shares the immutable condition tree.
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}
