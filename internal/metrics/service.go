package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Metrics = (*Service)(nil)

type Service struct {
	BracketsGenerated      prometheus.Counter
	ScoresReported         prometheus.Counter
	AttendanceEnforced     prometheus.Counter
	TournamentsFinalized   prometheus.Counter
	TournamentsCancelled   prometheus.Counter
	ActivitiesEmitted      prometheus.Counter
	ActivitiesDeduplicated prometheus.Counter
	ActivityEmitFailed     prometheus.Counter
	SchedulerRuns          prometheus.Counter
	MutationDuration       *prometheus.HistogramVec
}

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the Prometheus metrics.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "league", Name: name, Help: help})
	}

	s := &Service{
		BracketsGenerated:      counter("brackets_generated_total", "Brackets generated or regenerated."),
		ScoresReported:         counter("scores_reported_total", "Match scores recorded."),
		AttendanceEnforced:     counter("attendance_enforcements_total", "Attendance enforcement passes."),
		TournamentsFinalized:   counter("tournaments_finalized_total", "Tournaments completed with a champion."),
		TournamentsCancelled:   counter("tournaments_cancelled_total", "Tournaments cancelled for lack of present teams."),
		ActivitiesEmitted:      counter("activities_emitted_total", "Activity records written."),
		ActivitiesDeduplicated: counter("activities_deduplicated_total", "Activity emissions skipped because the dedupe key already existed."),
		ActivityEmitFailed:     counter("activity_emit_failures_total", "Activity emissions that failed after the state change committed."),
		SchedulerRuns:          counter("scheduler_runs_total", "Scheduler sweeps."),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "league",
			Name:      "mutation_duration_seconds",
			Help:      "Duration of per-tournament transactions.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
	}

	reg.MustRegister(
		s.BracketsGenerated,
		s.ScoresReported,
		s.AttendanceEnforced,
		s.TournamentsFinalized,
		s.TournamentsCancelled,
		s.ActivitiesEmitted,
		s.ActivitiesDeduplicated,
		s.ActivityEmitFailed,
		s.SchedulerRuns,
		s.MutationDuration,
	)

	return s
}

func (s *Service) IncBracketsGenerated()      { s.BracketsGenerated.Inc() }
func (s *Service) IncScoresReported()         { s.ScoresReported.Inc() }
func (s *Service) IncAttendanceEnforced()     { s.AttendanceEnforced.Inc() }
func (s *Service) IncTournamentsFinalized()   { s.TournamentsFinalized.Inc() }
func (s *Service) IncTournamentsCancelled()   { s.TournamentsCancelled.Inc() }
func (s *Service) IncActivitiesEmitted()      { s.ActivitiesEmitted.Inc() }
func (s *Service) IncActivitiesDeduplicated() { s.ActivitiesDeduplicated.Inc() }
func (s *Service) IncActivityEmitFailed()     { s.ActivityEmitFailed.Inc() }
func (s *Service) IncSchedulerRuns()          { s.SchedulerRuns.Inc() }

func (s *Service) ObserveMutationDuration(op string, seconds float64) {
	s.MutationDuration.WithLabelValues(op).Observe(seconds)
}
