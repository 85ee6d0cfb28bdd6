// Package lastfailed persists the set of failed scenarios of each run,
// so the next run can be restricted to just those. It consumes reported
// results off the bus and never touches them beyond reading identity
// and status.
package lastfailed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sre-norns/skuld/pkg/bus"
	"github.com/sre-norns/skuld/pkg/events"
	"github.com/sre-norns/skuld/pkg/scheduler"
)

var ErrNoPreviousRun = errors.New("no previous run recorded")

// FailedScenario is one failed scenario of one recorded run.
type FailedScenario struct {
	ID        uint   `gorm:"primarykey"`
	RunID     string `gorm:"index"`
	UniqueID  string
	CreatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open last-failed store: %w", err)
	}

	if err := db.AutoMigrate(&FailedScenario{}); err != nil {
		return nil, fmt.Errorf("failed to migrate last-failed store: %w", err)
	}

	return &Store{db: db}, nil
}

// Record replaces the stored failure set with the given run's failures.
// Runs with no failures are recorded too: an empty set is a valid
// "nothing to re-run" answer, not an absent one.
func (s *Store) Record(ctx context.Context, runID string, uniqueIDs []string) error {
	rows := make([]FailedScenario, 0, len(uniqueIDs))
	for _, id := range uniqueIDs {
		rows = append(rows, FailedScenario{RunID: runID, UniqueID: id})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-recording the same run replaces its earlier snapshot
		err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&FailedScenario{}).Error
		if err != nil {
			return err
		}
		// Keep a marker row for failure-free runs
		rows = append(rows, FailedScenario{RunID: runID, UniqueID: ""})
		return tx.Create(&rows).Error
	})
}

// LastFailed returns the unique ids of the scenarios that failed in the
// most recently recorded run, or ErrNoPreviousRun.
func (s *Store) LastFailed(ctx context.Context) ([]string, error) {
	var rows []FailedScenario
	tx := s.db.WithContext(ctx).Order("id asc").Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if len(rows) == 0 {
		return nil, ErrNoPreviousRun
	}

	result := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.UniqueID == "" {
			continue
		}
		result = append(result, row.UniqueID)
	}
	return result, nil
}

// Plugin collects failed scenario ids off the bus and records them at
// the end of the run.
type Plugin struct {
	store *Store

	mu     sync.Mutex
	runID  string
	failed []string
}

func NewPlugin(store *Store) *Plugin {
	return &Plugin{store: store}
}

func (p *Plugin) Subscribe(d *bus.Dispatcher) {
	d.Listen(events.KindRunStarted, p.onRunStarted, 0).
		Listen(events.KindScenarioReported, p.onScenarioReported, 0).
		Listen(events.KindCleanup, p.onCleanup, 0)
}

// RestrictToLastFailed narrows the scheduler's selection to the
// scenarios that failed in the previous run. A run with no recorded
// failures keeps the full selection.
func (p *Plugin) RestrictToLastFailed(ctx context.Context, sched *scheduler.Scheduler) error {
	failed, err := p.store.LastFailed(ctx)
	if err != nil {
		if errors.Is(err, ErrNoPreviousRun) {
			return nil
		}
		return err
	}

	known := make(map[string]bool, len(sched.Discovered()))
	for _, scenario := range sched.Discovered() {
		known[scenario.UniqueID] = true
	}

	for _, id := range failed {
		// Renamed or removed scenarios may not exist anymore
		if !known[id] {
			continue
		}
		if err := sched.Only(id); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) onRunStarted(_ context.Context, event bus.Event) error {
	e, ok := event.(events.RunStarted)
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Partitioned runs announce the same run id once per worker
	if p.runID != e.RunID {
		p.runID = e.RunID
		p.failed = p.failed[:0]
	}
	return nil
}

func (p *Plugin) onScenarioReported(_ context.Context, event bus.Event) error {
	e, ok := event.(events.ScenarioReported)
	if !ok || e.Result == nil {
		return nil
	}

	if !e.Result.IsFailed() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e.Result.Scenario.UniqueID)
	return nil
}

func (p *Plugin) onCleanup(ctx context.Context, _ bus.Event) error {
	p.mu.Lock()
	runID := p.runID
	failed := make([]string, len(p.failed))
	copy(failed, p.failed)
	p.mu.Unlock()

	if runID == "" {
		return nil
	}

	return p.store.Record(ctx, runID, failed)
}
