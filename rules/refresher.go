package rules

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/liamcoop/classifier/internal/logger"
)

// Refresher reloads the registry snapshot on a cron schedule so edits made
// directly in the database are picked up.
type Refresher struct {
	registry *Registry
	cron     *cron.Cron
}

// NewRefresher schedules registry refreshes. The schedule is a standard
// 5-field cron expression or a descriptor such as "@every 30s".
func NewRefresher(registry *Registry, schedule string) (*Refresher, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, errors.New("refresh schedule is empty")
	}

	c := cron.New()
	r := &Refresher{registry: registry, cron: c}
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return nil, errors.Wrapf(err, "invalid refresh schedule %q", schedule)
	}
	return r, nil
}

// Start begins running scheduled refreshes in the background.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Refresher) run() {
	set, err := r.registry.Refresh()
	if err != nil {
		logger.Error("scheduled rule refresh failed", "error", err)
		return
	}
	for _, cr := range set.Invalid() {
		logger.WarnInvalidRule(cr.Rule.ID, cr.Err)
	}
	logger.Debug("rule snapshot refreshed", "active_rules", set.Len())
}
