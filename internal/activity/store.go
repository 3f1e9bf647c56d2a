package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	insertEventQuery = `
		INSERT INTO activities (id, event_type, subject_team_id, actor_user_id, team_name, tournament_id, dedupe_key, extras, created_at)
		VALUES (:id, :event_type, :subject_team_id, :actor_user_id, :team_name, :tournament_id, :dedupe_key, :extras, :created_at)
		ON CONFLICT (dedupe_key) DO NOTHING
	`
	listForTeamQuery       = "SELECT * FROM activities WHERE subject_team_id = ? ORDER BY created_at DESC, id DESC LIMIT ?"
	listForTournamentQuery = "SELECT * FROM activities WHERE tournament_id = ? ORDER BY created_at ASC, id ASC"
	countByKeyQuery        = "SELECT COUNT(*) FROM activities WHERE dedupe_key = ?"
)

// Store is the persisted activity feed.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Emit stores ev unless its dedupe key was seen before. It reports whether a new record
// was written.
func (s *Store) Emit(ctx context.Context, ev Event) (bool, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.NamedExecContext(ctx, insertEventQuery, ev)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ListForTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []Event
	err := s.db.SelectContext(ctx, &events, listForTeamQuery, teamID, limit)
	return events, err
}

func (s *Store) ListForTournament(ctx context.Context, tournamentID uuid.UUID) ([]Event, error) {
	var events []Event
	err := s.db.SelectContext(ctx, &events, listForTournamentQuery, tournamentID)
	return events, err
}

func (s *Store) CountByKey(ctx context.Context, dedupeKey string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, countByKeyQuery, dedupeKey)
	return n, err
}
