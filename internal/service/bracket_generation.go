package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type BracketService struct {
	*Deps
	shuffle func([]uuid.UUID)
}

func NewBracketService(d *Deps) *BracketService {
	return &BracketService{Deps: d, shuffle: shuffleTeams}
}

func shuffleTeams(ids []uuid.UUID) {
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

type BracketView struct {
	Tournament *bracket.Tournament `json:"tournament"`
	Matches    []bracket.Match     `json:"matches"`
	Rounds     []bracket.Round     `json:"rounds"`
	Available  bool                `json:"available"`
	Message    string              `json:"message,omitempty"`
}

// generate builds and stores a bracket from the active registrations. The caller holds
// the tournament lock and owns tx.
func (s *BracketService) generate(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament) ([]bracket.Match, error) {
	if !bracket.IsPowerOfTwo(t.MaxTeams) {
		return nil, invalidState("max teams %d is not a power of two", t.MaxTeams)
	}

	teamIDs, err := s.Stores.Registrations.RegisteredTeamIDs(ctx, tx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered teams: %w", err)
	}
	if len(teamIDs) == 0 {
		return nil, invalidState("no teams are registered")
	}
	if len(teamIDs) > t.MaxTeams {
		return nil, invalidState("%d teams registered for %d slots", len(teamIDs), t.MaxTeams)
	}

	s.shuffle(teamIDs)
	tree, err := bracket.NewTree(t.ID, bracket.Pad(teamIDs, t.MaxTeams), s.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build bracket: %w", err)
	}
	byes := tree.AutoAdvance(bracket.Everyone)

	if err := s.Stores.Matches.CreateMatches(ctx, tx, tree.Matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	s.Metrics.IncBracketsGenerated()
	slog.Info("bracket generated", "tournament_id", t.ID, "teams", len(teamIDs), "matches", len(tree.Matches), "byes", len(byes))
	return tree.Matches, nil
}

// Generate creates the bracket. It fails if one already exists.
func (s *BracketService) Generate(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.inTournament(ctx, "generate", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		if t.Status == bracket.TournamentComplete {
			return invalidState("tournament is complete")
		}
		count, err := s.Stores.Matches.CountMatches(ctx, tx, t.ID)
		if err != nil {
			return fmt.Errorf("failed to count matches: %w", err)
		}
		if count > 0 {
			return invalidState("bracket already exists")
		}

		matches, err = s.generate(ctx, tx, t)
		if err != nil {
			return err
		}
		out.broadcast = true
		return nil
	})
	return matches, err
}

// Regenerate throws the current bracket away and draws a new one.
func (s *BracketService) Regenerate(ctx context.Context, tournamentID, requesterID uuid.UUID) ([]bracket.Match, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	var matches []bracket.Match
	err := s.inTournament(ctx, "regenerate", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		if t.Status == bracket.TournamentComplete {
			return invalidState("tournament is complete")
		}
		if err := s.Stores.Matches.DeleteMatches(ctx, tx, t.ID); err != nil {
			return fmt.Errorf("failed to delete matches: %w", err)
		}

		var err error
		matches, err = s.generate(ctx, tx, t)
		if err != nil {
			return err
		}
		out.broadcast = true
		return nil
	})
	return matches, err
}

// GetBracket returns the bracket, generating it on first read inside the 24 hour window.
func (s *BracketService) GetBracket(ctx context.Context, tournamentID uuid.UUID) (*BracketView, error) {
	t, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	matches, err := s.Stores.Matches.GetMatches(ctx, s.DB, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	if len(matches) > 0 {
		return available(t, matches), nil
	}

	switch {
	case t.Status == bracket.TournamentComplete:
		return unavailable(t, "tournament ended without a bracket"), nil
	case t.Status == bracket.TournamentDraft:
		return unavailable(t, "tournament is not open yet"), nil
	case !t.BracketWindowOpen(s.Now()):
		return unavailable(t, "bracket is available 24 hours before start"), nil
	}

	err = s.inTournament(ctx, "generate", t.ID, func(tx *sqlx.Tx, locked *bracket.Tournament, out *outbox) error {
		t = locked
		// Another reader may have generated it while this one waited for the lock.
		matches, err = s.Stores.Matches.GetMatches(ctx, tx, locked.ID)
		if err != nil {
			return fmt.Errorf("failed to get matches: %w", err)
		}
		if len(matches) > 0 || locked.Status == bracket.TournamentComplete {
			return nil
		}

		if matches, err = s.generate(ctx, tx, locked); err != nil {
			return err
		}
		out.broadcast = true
		return nil
	})
	if errors.Is(err, ErrInvalidState) {
		return unavailable(t, err.Error()), nil
	}
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return unavailable(t, "tournament ended without a bracket"), nil
	}
	return available(t, matches), nil
}

func available(t *bracket.Tournament, matches []bracket.Match) *BracketView {
	return &BracketView{Tournament: t, Matches: matches, Rounds: bracket.GroupRounds(matches), Available: true}
}

func unavailable(t *bracket.Tournament, msg string) *BracketView {
	return &BracketView{Tournament: t, Matches: []bracket.Match{}, Rounds: []bracket.Round{}, Message: msg}
}

// loadTree reads the bracket for a locked tournament.
func (d *Deps) loadTree(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) (*bracket.Tree, error) {
	matches, err := d.Stores.Matches.GetMatches(ctx, tx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	tree, err := bracket.LoadTree(matches)
	if err != nil {
		return nil, fmt.Errorf("failed to load bracket: %w", err)
	}
	return tree, nil
}
