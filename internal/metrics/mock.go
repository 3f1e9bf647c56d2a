package metrics

import "sync"

// Mock is a mock implementation of the Metrics interface for testing.
// It is safe for concurrent use.
type Mock struct {
	mu     sync.Mutex
	counts map[string]int
	ops    []string
}

func NewMock() *Mock {
	return &Mock{counts: make(map[string]int)}
}

func (m *Mock) inc(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
}

func (m *Mock) IncBracketsGenerated()      { m.inc("brackets_generated") }
func (m *Mock) IncScoresReported()         { m.inc("scores_reported") }
func (m *Mock) IncAttendanceEnforced()     { m.inc("attendance_enforced") }
func (m *Mock) IncTournamentsFinalized()   { m.inc("tournaments_finalized") }
func (m *Mock) IncTournamentsCancelled()   { m.inc("tournaments_cancelled") }
func (m *Mock) IncActivitiesEmitted()      { m.inc("activities_emitted") }
func (m *Mock) IncActivitiesDeduplicated() { m.inc("activities_deduplicated") }
func (m *Mock) IncActivityEmitFailed()     { m.inc("activity_emit_failed") }
func (m *Mock) IncSchedulerRuns()          { m.inc("scheduler_runs") }

func (m *Mock) ObserveMutationDuration(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

// Count returns how often the named counter was incremented, e.g. "scores_reported".
func (m *Mock) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// Ops returns the operations observed by ObserveMutationDuration, in order.
func (m *Mock) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}
