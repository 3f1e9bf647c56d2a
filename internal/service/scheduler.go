package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Scheduler sends the pre-start reminders and closes signups once a tournament is inside
// its bracket window. Every run is safe to repeat: reminders carry dedupe keys.
type Scheduler struct {
	*Deps
	interval time.Duration
}

func NewScheduler(d *Deps, interval time.Duration) *Scheduler {
	return &Scheduler{Deps: d, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx, s.Now()); err != nil {
			slog.Error("scheduler sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep handles every tournament starting within the next bracket window. The window is
// widened by one interval so a tournament that crosses the 24 hour mark between two runs
// is not missed. It returns how many tournaments were visited.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.Metrics.IncSchedulerRuns()

	upcoming, err := s.Stores.Tournaments.ListStartingBetween(ctx, now, now.Add(bracket.BracketWindow+s.interval))
	if err != nil {
		return 0, fmt.Errorf("failed to list upcoming tournaments: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range upcoming {
		t := &upcoming[i]
		g.Go(func() error {
			if err := s.remind(gctx, t, now); err != nil {
				slog.Error("failed to process tournament", "tournament_id", t.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(upcoming), nil
}

func (s *Scheduler) remind(ctx context.Context, t *bracket.Tournament, now time.Time) error {
	until := t.StartsAt.Sub(now)
	if until > bracket.BracketWindow {
		return nil
	}

	if _, err := s.RefreshStatus(ctx, t.ID); err != nil {
		return err
	}

	teamIDs, err := s.Stores.Registrations.RegisteredTeamIDs(ctx, s.DB, t.ID)
	if err != nil {
		return fmt.Errorf("failed to list registered teams: %w", err)
	}
	if len(teamIDs) == 0 {
		return nil
	}
	names, err := s.teamNames(ctx, teamIDs...)
	if err != nil {
		return err
	}

	var events []activity.Event
	for _, id := range teamIDs {
		name := names[id]
		events = append(events, reminder(activity.TournamentBracketAvailable, "T24", t, id, name))
		if until <= bracket.SignupLockout {
			events = append(events, reminder(activity.TournamentStartsSoon, "T12", t, id, name))
		}
	}
	s.emit(ctx, events)
	return nil
}

func reminder(typ activity.EventType, window string, t *bracket.Tournament, teamID uuid.UUID, teamName string) activity.Event {
	return activity.Event{
		Type:          typ,
		SubjectTeamID: teamID,
		TeamName:      &teamName,
		TournamentID:  &t.ID,
		DedupeKey:     activity.Key(window, t.ID, teamID),
		Extras: activity.Extras{
			"tournament_name": t.Name,
			"starts_at":       t.StartsAt.Format(time.RFC3339),
		},
	}
}
