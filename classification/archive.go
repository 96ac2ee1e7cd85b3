package classification

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/liamcoop/classifier/internal/db"
)

// Archive persists issued results so their hashes stay resolvable across
// restarts. Put must keep the first result stored for a hash and report
// whether r was the one stored.
type Archive interface {
	Get(hash string) (*Result, error)
	Put(r *Result) (bool, error)
}

// SQLArchive implements Archive on SQLite or PostgreSQL.
type SQLArchive struct {
	q *db.Queries
}

// NewSQLArchive creates an archive over the named queries.
func NewSQLArchive(q *db.Queries) *SQLArchive {
	return &SQLArchive{q: q}
}

type resultRow struct {
	Hash           string         `db:"hash"`
	Classification string         `db:"classification"`
	Confidence     float64        `db:"confidence"`
	MatchedRuleID  sql.NullString `db:"matched_rule_id"`
	EvaluatedAt    time.Time      `db:"evaluated_at"`
	EvaluationLog  string         `db:"evaluation_log"`
}

// Get loads a result by hash, returning ErrNotFound when absent.
func (a *SQLArchive) Get(hash string) (*Result, error) {
	var row resultRow
	err := a.q.Get("get-result", &row, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "hash %s", hash)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get result")
	}

	res := &Result{
		Hash:           row.Hash,
		Classification: row.Classification,
		Confidence:     row.Confidence,
		EvaluatedAt:    row.EvaluatedAt.UTC(),
	}
	if row.MatchedRuleID.Valid {
		id := row.MatchedRuleID.String
		res.MatchedRuleID = &id
	}
	if err := json.Unmarshal([]byte(row.EvaluationLog), &res.EvaluationLog); err != nil {
		return nil, errors.Wrapf(err, "failed to decode evaluation log for %s", hash)
	}
	return res, nil
}

// Put stores a result. An existing row for the same hash is left untouched
// and Put returns false.
func (a *SQLArchive) Put(r *Result) (bool, error) {
	log := r.EvaluationLog
	if log == nil {
		log = []LogEntry{}
	}
	data, err := json.Marshal(log)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode evaluation log")
	}

	var matched sql.NullString
	if r.MatchedRuleID != nil {
		matched = sql.NullString{String: *r.MatchedRuleID, Valid: true}
	}

	res, err := a.q.Exec("insert-result",
		r.Hash, r.Classification, r.Confidence, matched, r.EvaluatedAt, string(data))
	if err != nil {
		return false, errors.Wrap(err, "failed to store result")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n == 1, nil
}

// Count returns the number of archived results.
func (a *SQLArchive) Count() (int, error) {
	var n int
	if err := a.q.Get("count-results", &n); err != nil {
		return 0, errors.Wrap(err, "failed to count results")
	}
	return n, nil
}
