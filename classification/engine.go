package classification

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/liamcoop/classifier/internal/logger"
	"github.com/liamcoop/classifier/rules"
)

// RuleSource supplies the current rule snapshot. *rules.Registry implements it.
type RuleSource interface {
	Snapshot() (*rules.RuleSet, error)
}

// Config wires an Engine. Zero values select defaults; Archive is optional.
type Config struct {
	Options    Options
	HashFields []string
	Archive    Archive
	Statistics *Statistics
}

// Engine issues classification results. A result is computed at most once
// per hash and then served unchanged, even after the rules change.
type Engine struct {
	source  RuleSource
	opts    Options
	hasher  *Hasher
	cache   *ResultCache
	archive Archive
	stats   *Statistics
	group   singleflight.Group
}

// NewEngine creates an engine reading rules from source.
func NewEngine(source RuleSource, cfg Config) *Engine {
	if cfg.Options.DefaultLabel == "" {
		cfg.Options.DefaultLabel = DefaultLabel
	}
	if cfg.Options.Confidence == (ConfidenceModel{}) {
		cfg.Options.Confidence = DefaultConfidenceModel()
	}
	if cfg.Statistics == nil {
		cfg.Statistics = NewStatistics()
	}
	return &Engine{
		source:  source,
		opts:    cfg.Options,
		hasher:  NewHasher(cfg.HashFields),
		cache:   NewResultCache(),
		archive: cfg.Archive,
		stats:   cfg.Statistics,
	}
}

// HashOf returns the hash a record's result is stored under.
func (e *Engine) HashOf(rec Record) string {
	return e.hasher.HashOf(rec)
}

type computed struct {
	result *Result
	cached bool
}

// GetOrCompute returns the result for the record, classifying it against
// the current snapshot only if no result exists for its hash. cached reports
// whether the result was issued before this call, including by a concurrent
// call for the same hash. Every call is counted in the statistics. An archive
// failure aborts the call rather than issue a result that may differ from
// the archived one.
func (e *Engine) GetOrCompute(rec Record) (*Result, bool, error) {
	if err := ValidateRecord(rec); err != nil {
		return nil, false, err
	}

	hash := e.hasher.HashOf(rec)
	if r, ok := e.cache.Get(hash); ok {
		e.stats.RecordClassification(r.Classification)
		return r.Clone(), true, nil
	}

	ran := false
	v, err, _ := e.group.Do(hash, func() (any, error) {
		ran = true
		return e.compute(rec, hash)
	})
	if err != nil {
		return nil, false, err
	}

	c := v.(computed)
	e.stats.RecordClassification(c.result.Classification)
	return c.result.Clone(), c.cached || !ran, nil
}

func (e *Engine) compute(rec Record, hash string) (computed, error) {
	if r, ok := e.cache.Get(hash); ok {
		return computed{result: r, cached: true}, nil
	}
	r, err := e.fromArchive(hash)
	if err == nil {
		return computed{result: e.cache.PutIfAbsent(r), cached: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return computed{}, err
	}

	set, err := e.source.Snapshot()
	if err != nil {
		return computed{}, errors.Wrap(err, "failed to load rule snapshot")
	}
	e.stats.SetActiveRuleCount(set.Len())

	res := Classify(rec, set, e.opts)
	res.Hash = hash

	if e.archive != nil {
		inserted, err := e.archive.Put(res)
		if err != nil {
			return computed{}, errors.Wrapf(err, "failed to archive result %s", hash)
		}
		if !inserted {
			held, err := e.archive.Get(hash)
			if err != nil {
				return computed{}, errors.Wrapf(err, "failed to read back result %s", hash)
			}
			return computed{result: e.cache.PutIfAbsent(held), cached: true}, nil
		}
	}

	stored := e.cache.PutIfAbsent(res)
	return computed{result: stored, cached: stored != res}, nil
}

// Retrieve returns a previously issued result. It never classifies. A
// missing hash yields ErrNotFound; other archive failures are returned wrapped.
func (e *Engine) Retrieve(hash string) (*Result, error) {
	if r, ok := e.cache.Get(hash); ok {
		return r.Clone(), nil
	}
	r, err := e.fromArchive(hash)
	if err != nil {
		return nil, err
	}
	return e.cache.PutIfAbsent(r).Clone(), nil
}

// DryRun classifies against the current snapshot without storing or
// counting the result. The evaluation log is always included.
func (e *Engine) DryRun(rec Record) (*Result, error) {
	if err := ValidateRecord(rec); err != nil {
		return nil, err
	}
	set, err := e.source.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load rule snapshot")
	}
	res := Classify(rec, set, e.opts)
	res.Hash = e.hasher.HashOf(rec)
	return res, nil
}

// Statistics returns a snapshot of the counters with the current active
// rule count.
func (e *Engine) Statistics() StatisticsSnapshot {
	if set, err := e.source.Snapshot(); err == nil {
		e.stats.SetActiveRuleCount(set.Len())
	}
	return e.stats.Snapshot()
}

// CachedResults returns the number of results held in memory.
func (e *Engine) CachedResults() int {
	return e.cache.Len()
}

func (e *Engine) fromArchive(hash string) (*Result, error) {
	if e.archive == nil {
		return nil, errors.Wrapf(ErrNotFound, "hash %s", hash)
	}
	r, err := e.archive.Get(hash)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		logger.Error("failed to read classification archive", "hash", hash, "error", err)
		return nil, errors.Wrapf(err, "failed to read archived result %s", hash)
	}
	return r, nil
}
