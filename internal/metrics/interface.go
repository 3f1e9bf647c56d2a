package metrics

// Metrics is what the bracket services report. Service is the Prometheus implementation,
// Mock is for tests.
type Metrics interface {
	IncBracketsGenerated()
	IncScoresReported()
	IncAttendanceEnforced()
	IncTournamentsFinalized()
	IncTournamentsCancelled()
	IncActivitiesEmitted()
	IncActivitiesDeduplicated()
	IncActivityEmitFailed()
	IncSchedulerRuns()
	ObserveMutationDuration(op string, seconds float64)
}
