package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/AdamBeresnev/league-brackets/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type FinalizeService struct {
	*Deps
}

func NewFinalizeService(d *Deps) *FinalizeService {
	return &FinalizeService{Deps: d}
}

// Finalize closes a tournament whose final has been played by a checked in winner.
func (s *FinalizeService) Finalize(ctx context.Context, tournamentID, requesterID uuid.UUID) (*bracket.Tournament, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	var done *bracket.Tournament
	err := s.inTournament(ctx, "finalize", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		if t.Status == bracket.TournamentComplete {
			return invalidState("tournament is already complete")
		}
		tree, err := s.loadTree(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if tree == nil {
			return invalidState("final match is not complete")
		}
		final := tree.Final()
		if !final.IsComplete() || final.WinnerTeamID == nil {
			return invalidState("final match is not complete")
		}

		reg, err := s.Stores.Registrations.GetRegistration(ctx, tx, t.ID, *final.WinnerTeamID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to get winner registration: %w", err)
		}
		if reg == nil || !reg.IsActive() || !reg.CheckedIn {
			return invalidState("winner has not checked in")
		}

		actor := requesterID
		if err := s.finalizeTx(ctx, tx, t, *final.WinnerTeamID, &actor, out); err != nil {
			return err
		}
		done = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// finalizeTx completes t with winnerID as champion. The caller has checked the winner's
// attendance.
func (d *Deps) finalizeTx(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, winnerID uuid.UUID, actor *uuid.UUID, out *outbox) error {
	now := d.Now()
	if err := d.Stores.Tournaments.CompleteTournament(ctx, tx, t.ID, now); err != nil {
		return fmt.Errorf("failed to complete tournament: %w", err)
	}
	t.Status = bracket.TournamentComplete
	t.EndsAt = &now

	rosters, err := d.membersOf(ctx, winnerID)
	if err != nil {
		return err
	}
	if err := d.Stores.Stats.AddStats(ctx, tx, rosters[winnerID], bracket.SportBasketball, store.StatsDelta{Titles: 1}, now); err != nil {
		return fmt.Errorf("failed to add titles: %w", err)
	}

	teamIDs, err := d.Stores.Registrations.RegisteredTeamIDs(ctx, tx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to list registered teams: %w", err)
	}
	names, err := d.teamNames(ctx, append(teamIDs, winnerID)...)
	if err != nil {
		return err
	}
	winnerName := names[winnerID]

	for _, id := range teamIDs {
		name := names[id]
		out.emit(activity.Event{
			Type:          activity.TournamentCompleted,
			SubjectTeamID: id,
			ActorUserID:   actor,
			TeamName:      &name,
			TournamentID:  &t.ID,
			DedupeKey:     activity.Key(activity.TournamentCompleted, t.ID, id),
			Extras: activity.Extras{
				"tournament_name":  t.Name,
				"winner_team_id":   winnerID.String(),
				"winner_team_name": winnerName,
			},
		})
	}
	out.emit(activity.Event{
		Type:          activity.TournamentWinner,
		SubjectTeamID: winnerID,
		ActorUserID:   actor,
		TeamName:      &winnerName,
		TournamentID:  &t.ID,
		DedupeKey:     activity.Key(activity.TournamentWinner, t.ID, winnerID),
		Extras:        activity.Extras{"tournament_name": t.Name},
	})
	out.broadcast = true

	d.Metrics.IncTournamentsFinalized()
	slog.Info("tournament finalized", "tournament_id", t.ID, "winner", winnerID)
	return nil
}

// cancelTx ends t without a champion and tells every registered team.
func (d *Deps) cancelTx(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, reason string, now time.Time, out *outbox) error {
	if err := d.Stores.Tournaments.CompleteTournament(ctx, tx, t.ID, now); err != nil {
		return fmt.Errorf("failed to cancel tournament: %w", err)
	}
	t.Status = bracket.TournamentComplete
	t.EndsAt = &now

	teamIDs, err := d.Stores.Registrations.RegisteredTeamIDs(ctx, tx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to list registered teams: %w", err)
	}
	names, err := d.teamNames(ctx, teamIDs...)
	if err != nil {
		return err
	}
	for _, id := range teamIDs {
		name := names[id]
		out.emit(activity.Event{
			Type:          activity.TournamentCancelled,
			SubjectTeamID: id,
			TeamName:      &name,
			TournamentID:  &t.ID,
			DedupeKey:     activity.Key(activity.TournamentCancelled, t.ID, id),
			Extras:        activity.Extras{"tournament_name": t.Name, "reason": reason},
		})
	}
	out.broadcast = true

	d.Metrics.IncTournamentsCancelled()
	slog.Warn("tournament cancelled", "tournament_id", t.ID, "reason", reason, "teams", len(teamIDs))
	return nil
}
