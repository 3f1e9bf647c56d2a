package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RegistrationStore struct {
	db *sqlx.DB
}

const (
	getRegistrationQuery = "SELECT * FROM tournament_registrations WHERE tournament_id = ? AND team_id = ?"
	// The row per (tournament, team) is reactivated in place, which also settles two
	// concurrent inserts for the same pair.
	upsertRegistrationQuery = `
		INSERT INTO tournament_registrations (id, tournament_id, team_id, status, checked_in, agreements_accepted, created_at, updated_at)
		VALUES (:id, :tournament_id, :team_id, :status, :checked_in, :agreements_accepted, :created_at, :updated_at)
		ON CONFLICT (tournament_id, team_id) DO UPDATE SET
			status = excluded.status,
			checked_in = excluded.checked_in,
			agreements_accepted = excluded.agreements_accepted,
			updated_at = excluded.updated_at
	`
	cancelRegistrationQuery = `
		UPDATE tournament_registrations SET status = 'CANCELLED', checked_in = 0, updated_at = ?
		WHERE tournament_id = ? AND team_id = ?
	`
	setCheckedInQuery = `
		UPDATE tournament_registrations SET checked_in = ?, updated_at = ?
		WHERE tournament_id = ? AND team_id = ? AND status = 'REGISTERED'
	`
	countRegisteredQuery   = "SELECT COUNT(*) FROM tournament_registrations WHERE tournament_id = ? AND status = 'REGISTERED'"
	listRegisteredQuery    = "SELECT * FROM tournament_registrations WHERE tournament_id = ? AND status = 'REGISTERED' ORDER BY created_at ASC, id ASC"
	registeredTeamIDsQuery = "SELECT team_id FROM tournament_registrations WHERE tournament_id = ? AND status = 'REGISTERED' ORDER BY created_at ASC, id ASC"
	listExpandedQuery      = `
		SELECT r.id, r.team_id, t.name AS team_name, r.checked_in, r.created_at
		FROM tournament_registrations r
		JOIN teams t ON t.id = r.team_id
		WHERE r.tournament_id = ? AND r.status = 'REGISTERED'
		ORDER BY r.created_at ASC, r.id ASC
	`
)

func NewRegistrationStore(db *sqlx.DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

func (s *RegistrationStore) GetRegistration(ctx context.Context, q sqlx.QueryerContext, tournamentID, teamID uuid.UUID) (*bracket.Registration, error) {
	var reg bracket.Registration
	if err := sqlx.GetContext(ctx, q, &reg, getRegistrationQuery, tournamentID, teamID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// UpsertRegistration inserts reg or reactivates the existing row for the same team.
// The stored row is returned, keeping its original id.
func (s *RegistrationStore) UpsertRegistration(ctx context.Context, q sqlx.ExtContext, reg *bracket.Registration) (*bracket.Registration, error) {
	if _, err := sqlx.NamedExecContext(ctx, q, upsertRegistrationQuery, reg); err != nil {
		return nil, err
	}
	return s.GetRegistration(ctx, q, reg.TournamentID, reg.TeamID)
}

func (s *RegistrationStore) CancelRegistration(ctx context.Context, q sqlx.ExecerContext, tournamentID, teamID uuid.UUID, now time.Time) error {
	_, err := q.ExecContext(ctx, cancelRegistrationQuery, now, tournamentID, teamID)
	return err
}

func (s *RegistrationStore) SetCheckedIn(ctx context.Context, q sqlx.ExecerContext, tournamentID, teamID uuid.UUID, checkedIn bool, now time.Time) error {
	_, err := q.ExecContext(ctx, setCheckedInQuery, checkedIn, now, tournamentID, teamID)
	return err
}

func (s *RegistrationStore) CountRegistered(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, countRegisteredQuery, tournamentID)
	return n, err
}

func (s *RegistrationStore) ListRegistered(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Registration, error) {
	var regs []bracket.Registration
	err := sqlx.SelectContext(ctx, q, &regs, listRegisteredQuery, tournamentID)
	return regs, err
}

func (s *RegistrationStore) RegisteredTeamIDs(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, q, &ids, registeredTeamIDsQuery, tournamentID)
	return ids, err
}

// ListExpanded returns active registrations with team names, seeded 1..n by signup order.
func (s *RegistrationStore) ListExpanded(ctx context.Context, tournamentID uuid.UUID) ([]bracket.ExpandedRegistration, error) {
	var rows []bracket.ExpandedRegistration
	if err := s.db.SelectContext(ctx, &rows, listExpandedQuery, tournamentID); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Seed = i + 1
	}
	return rows, nil
}
