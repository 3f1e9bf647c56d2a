package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchStore struct {
	db *sqlx.DB
}

const (
	createMatchesQuery = `
		INSERT INTO matches (id, tournament_id, round_number, match_number, team_a_id, team_b_id, score_a, score_b,
			winner_team_id, status, next_match_id, next_match_slot, created_at, updated_at)
		VALUES (:id, :tournament_id, :round_number, :match_number, :team_a_id, :team_b_id, :score_a, :score_b,
			:winner_team_id, :status, :next_match_id, :next_match_slot, :created_at, :updated_at)
	`
	updateMatchQuery = `
		UPDATE matches SET
			team_a_id = :team_a_id,
			team_b_id = :team_b_id,
			score_a = :score_a,
			score_b = :score_b,
			winner_team_id = :winner_team_id,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id
	`
	getMatchQuery      = "SELECT * FROM matches WHERE id = ?"
	getMatchesQuery    = "SELECT * FROM matches WHERE tournament_id = ? ORDER BY round_number ASC, match_number ASC"
	countMatchesQuery  = "SELECT COUNT(*) FROM matches WHERE tournament_id = ?"
	deleteMatchesQuery = "DELETE FROM matches WHERE tournament_id = ?"
)

func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db}
}

// CreateMatches inserts a whole bracket in one statement so the self references
// between matches are checked together.
func (s *MatchStore) CreateMatches(ctx context.Context, q sqlx.ExtContext, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, q, createMatchesQuery, matches)
	return err
}

func (s *MatchStore) UpdateMatches(ctx context.Context, q sqlx.ExtContext, matches []bracket.Match, now time.Time) error {
	for i := range matches {
		matches[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, q, updateMatchQuery, matches[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MatchStore) GetMatch(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := sqlx.GetContext(ctx, q, &match, getMatchQuery, id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *MatchStore) GetMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := sqlx.SelectContext(ctx, q, &matches, getMatchesQuery, tournamentID)
	return matches, err
}

func (s *MatchStore) CountMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, countMatchesQuery, tournamentID)
	return n, err
}

func (s *MatchStore) DeleteMatches(ctx context.Context, q sqlx.ExecerContext, tournamentID uuid.UUID) error {
	_, err := q.ExecContext(ctx, deleteMatchesQuery, tournamentID)
	return err
}
