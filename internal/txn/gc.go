package txn

import (
	"log"

	"github.com/robfig/cron/v3"
)

// GCScheduler runs the stop-the-world GarbageCollection sweep on a cron
// schedule, the same job-scheduling role the teacher gives robfig/cron for
// user SQL jobs (internal/storage/scheduler.go), repointed here at the
// engine's own maintenance task.
type GCScheduler struct {
	cron    *cron.Cron
	manager *Manager
	entryID cron.EntryID
}

// DefaultGCSchedule runs a sweep every 30 seconds.
const DefaultGCSchedule = "@every 30s"

// NewGCScheduler wires a cron job that invokes manager.GarbageCollection on
// every tick of spec (a standard cron expression, or the "@every" shorthand
// robfig/cron supports).
func NewGCScheduler(manager *Manager, spec string) (*GCScheduler, error) {
	c := cron.New()
	s := &GCScheduler{cron: c, manager: manager}
	id, err := c.AddFunc(spec, s.sweep)
	if err != nil {
		return nil, err
	}
	s.entryID = id
	return s, nil
}

func (s *GCScheduler) sweep() {
	removed := s.manager.GarbageCollection()
	if removed > 0 {
		log.Printf("txn: gc sweep removed %d transaction(s)", removed)
	}
}

// Start begins running the scheduled sweeps in a background goroutine.
func (s *GCScheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, blocking until any in-flight sweep finishes.
func (s *GCScheduler) Stop() { <-s.cron.Stop().Done() }

// GarbageCollection removes, from the transaction map, any transaction in
// {COMMITTED, ABORTED} whose undo logs are all unreachable: conservatively,
// whose commit_ts is below the watermark, or which never recorded any undo
// log at all. Returns the number of transactions removed.
func (m *Manager) GarbageCollection() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	wm := m.watermark.Value()
	removed := 0
	for id, t := range m.txns {
		t.mu.Lock()
		state := t.State
		commitTs := t.CommitTs
		hasLogs := len(t.UndoLogs) > 0
		t.mu.Unlock()

		if state != Committed && state != Aborted {
			continue
		}
		if !hasLogs || commitTs < wm {
			delete(m.txns, id)
			removed++
		}
	}

	pruned := m.commitLog[:0]
	for _, rec := range m.commitLog {
		if rec.commitTs >= wm {
			pruned = append(pruned, rec)
		}
	}
	m.commitLog = pruned

	return removed
}
