package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/classifier/internal/logger"
)

// FileStore is a read-only RuleStore backed by a YAML or JSON rule file.
// The file is read on every call, so a Registry refresh picks up edits.
type FileStore struct {
	path           string
	format         Format
	debouncePeriod time.Duration
}

// NewFileStore creates a store for the rule file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:           path,
		format:         FormatFromPath(path),
		debouncePeriod: 250 * time.Millisecond,
	}
}

// Path returns the watched rule file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() ([]*Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read rule file %s", s.path)
	}
	list, err := DecodeRules(data, s.format)
	if err != nil {
		return nil, errors.Wrapf(err, "rule file %s", s.path)
	}

	seen := make(map[string]bool, len(list))
	for i, r := range list {
		if r.ID == "" {
			return nil, errors.Newf("rule file %s: rule %d has no id", s.path, i)
		}
		if seen[r.ID] {
			return nil, errors.Wrapf(ErrDuplicateRule, "rule file %s: rule %s", s.path, r.ID)
		}
		seen[r.ID] = true
	}
	return list, nil
}

// Get retrieves a rule by ID.
func (s *FileStore) Get(id string) (*Rule, error) {
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.Wrapf(ErrRuleNotFound, "rule with ID %s", id)
}

// List returns all rules ordered by priority, then ID.
func (s *FileStore) List() ([]*Rule, error) {
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	sortRules(list)
	return list, nil
}

// ListActive returns active rules ordered by priority, then ID.
func (s *FileStore) ListActive() ([]*Rule, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	active := list[:0]
	for _, r := range list {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

// Add is not supported.
func (s *FileStore) Add(*Rule) error { return errors.WithStack(ErrReadOnlyStore) }

// Update is not supported.
func (s *FileStore) Update(*Rule) error { return errors.WithStack(ErrReadOnlyStore) }

// Delete is not supported.
func (s *FileStore) Delete(string) error { return errors.WithStack(ErrReadOnlyStore) }

// Watch calls onChange after the rule file is written, created or replaced.
// Rapid successive events are collapsed into one call. The parent directory
// is watched so editors that save by rename are seen. Watching stops when ctx
// is done.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()

		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		schedule := func() {
			mu.Lock()
			defer mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debouncePeriod, onChange)
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					logger.Info("rule file changed", "file", event.Name, "op", event.Op.String())
					schedule()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("rule file watcher error", "error", err)
			}
		}
	}()
	return nil
}
