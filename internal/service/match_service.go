package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/AdamBeresnev/league-brackets/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	*Deps
}

func NewMatchService(d *Deps) *MatchService {
	return &MatchService{Deps: d}
}

type MatchResult struct {
	Match    *bracket.Match `json:"match"`
	WinnerID uuid.UUID      `json:"winner_team_id"`
	LoserID  uuid.UUID      `json:"loser_team_id"`
	IsFinal  bool           `json:"is_final"`

	// Advanced counts matches resolved afterwards because a checked-in winner had no
	// opponent left to come.
	Advanced  int  `json:"advanced"`
	Finalized bool `json:"finalized"`
}

// ReportScore records a played match and moves the winner on. Titles are only granted by
// Finalize, or when the follow-up advance decides the final for a checked-in team.
func (s *MatchService) ReportScore(ctx context.Context, tournamentID, matchID uuid.UUID, scoreA, scoreB int, requesterID uuid.UUID) (*MatchResult, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}
	if scoreA < 0 || scoreB < 0 {
		return nil, invalidInput("scores must not be negative")
	}

	var result *MatchResult
	err := s.inTournament(ctx, "report_score", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		now := s.Now()
		if t.Status == bracket.TournamentComplete {
			return invalidState("tournament is complete")
		}

		tree, err := s.loadTree(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if tree == nil {
			return notFound("match not found")
		}
		i, ok := tree.Index(matchID)
		if !ok {
			return notFound("match not found")
		}

		before := tree.Snapshot()
		winner, loser, err := tree.Record(i, scoreA, scoreB)
		switch {
		case errors.Is(err, bracket.ErrTie):
			return invalidState("ties are not allowed")
		case errors.Is(err, bracket.ErrMatchComplete):
			return invalidState("match is already complete")
		case errors.Is(err, bracket.ErrMissingTeams):
			return invalidState("match does not have two teams yet")
		case err != nil:
			return err
		}

		present, err := s.presence(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		resolved := tree.AutoAdvance(present.has)

		if err := s.Stores.Matches.UpdateMatches(ctx, tx, tree.Changed(before), now); err != nil {
			return fmt.Errorf("failed to update matches: %w", err)
		}

		rosters, err := s.membersOf(ctx, winner, loser)
		if err != nil {
			return err
		}
		if err := s.Stores.Stats.AddStats(ctx, tx, rosters[winner], bracket.SportBasketball, store.StatsDelta{Wins: 1}, now); err != nil {
			return fmt.Errorf("failed to add wins: %w", err)
		}
		if err := s.Stores.Stats.AddStats(ctx, tx, rosters[loser], bracket.SportBasketball, store.StatsDelta{Losses: 1}, now); err != nil {
			return fmt.Errorf("failed to add losses: %w", err)
		}

		names, err := s.teamNames(ctx, winner, loser)
		if err != nil {
			return err
		}

		m := tree.Matches[i]
		winnerScore, loserScore := m.ScoreA, m.ScoreB
		if m.TeamBID != nil && *m.TeamBID == winner {
			winnerScore, loserScore = loserScore, winnerScore
		}
		actor := requesterID
		out.emit(resultEvent(activity.MatchResultWin, t, &m, winner, loser, names, winnerScore, loserScore, &actor))
		out.emit(resultEvent(activity.MatchResultLoss, t, &m, loser, winner, names, loserScore, winnerScore, &actor))
		out.broadcast = true

		s.Metrics.IncScoresReported()
		slog.Info("score reported", "tournament_id", t.ID, "match_id", m.ID, "round", m.RoundNumber, "winner", winner, "final", m.IsFinal(), "advanced", len(resolved))

		finalized, err := s.finalizeIfResolved(ctx, tx, t, tree, resolved, present, &actor, out)
		if err != nil {
			return err
		}

		result = &MatchResult{Match: &m, WinnerID: winner, LoserID: loser, IsFinal: m.IsFinal(), Advanced: len(resolved), Finalized: finalized}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func resultEvent(typ activity.EventType, t *bracket.Tournament, m *bracket.Match, team, opponent uuid.UUID, names map[uuid.UUID]string, scoreFor, scoreAgainst int, actor *uuid.UUID) activity.Event {
	outcome := "WIN"
	if typ == activity.MatchResultLoss {
		outcome = "LOSS"
	}
	name := names[team]
	return activity.Event{
		Type:          typ,
		SubjectTeamID: team,
		ActorUserID:   actor,
		TeamName:      &name,
		TournamentID:  &t.ID,
		DedupeKey:     activity.Key("MR", outcome, m.ID, team),
		Extras: activity.Extras{
			"match_id":         m.ID.String(),
			"round":            m.RoundNumber,
			"opponent_team_id": opponent.String(),
			"opponent_name":    names[opponent],
			"score_for":        scoreFor,
			"score_against":    scoreAgainst,
			"tournament_name":  t.Name,
		},
	}
}
