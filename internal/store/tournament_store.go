package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store methods take a sqlx.ExtContext so the same query runs against the pool or inside
// a transaction.

type TournamentStore struct {
	db *sqlx.DB
}

const (
	createTournamentQuery = `
		INSERT INTO tournaments (id, name, format_size, max_teams, signup_deadline, starts_at, ends_at,
			location, prize_cents, status, created_by, created_at, updated_at)
		VALUES (:id, :name, :format_size, :max_teams, :signup_deadline, :starts_at, :ends_at,
			:location, :prize_cents, :status, :created_by, :created_at, :updated_at)
	`
	getTournamentQuery = "SELECT * FROM tournaments WHERE id = ?"
	// A no-op write takes sqlite's write lock for the rest of the transaction.
	lockTournamentQuery         = "UPDATE tournaments SET status = status WHERE id = ?"
	updateTournamentStatusQuery = "UPDATE tournaments SET status = ?, updated_at = ? WHERE id = ?"
	completeTournamentQuery     = "UPDATE tournaments SET status = 'COMPLETE', ends_at = ?, updated_at = ? WHERE id = ?"
	listUpcomingQuery           = "SELECT * FROM tournaments WHERE status <> 'COMPLETE' AND starts_at > ? ORDER BY starts_at ASC"
	listLiveQuery               = "SELECT * FROM tournaments WHERE status <> 'COMPLETE' AND starts_at <= ? ORDER BY starts_at ASC"
	listPastQuery               = "SELECT * FROM tournaments WHERE status = 'COMPLETE' ORDER BY ends_at DESC"
	listStartingBetweenQuery    = `
		SELECT * FROM tournaments
		WHERE status NOT IN ('COMPLETE', 'DRAFT') AND starts_at > ? AND starts_at <= ?
		ORDER BY starts_at ASC
	`
	listUpcomingForTeamQuery = `
		SELECT t.* FROM tournaments t
		JOIN tournament_registrations r ON r.tournament_id = t.id
		WHERE r.team_id = ? AND r.status = 'REGISTERED' AND t.status <> 'COMPLETE'
		ORDER BY t.starts_at ASC
	`
	listPastForTeamQuery = `
		SELECT t.* FROM tournaments t
		JOIN tournament_registrations r ON r.tournament_id = t.id
		WHERE r.team_id = ? AND r.status = 'REGISTERED' AND t.status = 'COMPLETE'
		ORDER BY t.ends_at DESC
	`
)

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, q sqlx.ExtContext, tournament *bracket.Tournament) error {
	_, err := sqlx.NamedExecContext(ctx, q, createTournamentQuery, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := sqlx.GetContext(ctx, q, &tournament, getTournamentQuery, id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

// LockTournament claims the write lock for tx and reports sql.ErrNoRows for an unknown id.
func (s *TournamentStore) LockTournament(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, lockTournamentQuery, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *TournamentStore) UpdateTournamentStatus(ctx context.Context, q sqlx.ExecerContext, id uuid.UUID, status bracket.TournamentStatus, now time.Time) error {
	_, err := q.ExecContext(ctx, updateTournamentStatusQuery, status, now, id)
	return err
}

func (s *TournamentStore) CompleteTournament(ctx context.Context, q sqlx.ExecerContext, id uuid.UUID, endsAt time.Time) error {
	_, err := q.ExecContext(ctx, completeTournamentQuery, endsAt, endsAt, id)
	return err
}

func (s *TournamentStore) ListUpcoming(ctx context.Context, now time.Time) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, listUpcomingQuery, now)
	return tournaments, err
}

func (s *TournamentStore) ListLive(ctx context.Context, now time.Time) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, listLiveQuery, now)
	return tournaments, err
}

func (s *TournamentStore) ListPast(ctx context.Context) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, listPastQuery)
	return tournaments, err
}

// ListStartingBetween returns open tournaments with from < starts_at <= to.
func (s *TournamentStore) ListStartingBetween(ctx context.Context, from, to time.Time) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, listStartingBetweenQuery, from, to)
	return tournaments, err
}

func (s *TournamentStore) ListForTeam(ctx context.Context, teamID uuid.UUID, past bool) ([]bracket.Tournament, error) {
	query := listUpcomingForTeamQuery
	if past {
		query = listPastForTeamQuery
	}
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, query, teamID)
	return tournaments, err
}
