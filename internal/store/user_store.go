package store

import (
	"context"
	"time"

	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserStore struct {
	db *sqlx.DB
}

const (
	getUserQuery    = "SELECT * FROM users WHERE id = ?"
	createUserQuery = `
		INSERT INTO users (id, username, role, created_at) VALUES
		(:id, :username, :role, :created_at)
	`
	getTeamNameQuery = "SELECT name FROM teams WHERE id = ?"
	isCaptainQuery   = "SELECT COUNT(*) FROM teams WHERE id = ? AND captain_id = ?"
	createTeamQuery  = `
		INSERT INTO teams (id, name, captain_id, created_at) VALUES
		(:id, :name, :captain_id, :created_at)
	`
	addMemberQuery = `
		INSERT INTO team_members (team_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`
	getMembersQuery = "SELECT user_id FROM team_members WHERE team_id = ? ORDER BY joined_at ASC, user_id ASC"
)

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserQuery, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, createUserQuery, user)
	return err
}

// TeamStore reads rosters. Teams are owned by the team service; the bracket engine only
// needs captaincy, membership and names.
type TeamStore struct {
	db *sqlx.DB
}

func NewTeamStore(db *sqlx.DB) *TeamStore {
	return &TeamStore{db: db}
}

func (s *TeamStore) TeamName(ctx context.Context, teamID uuid.UUID) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, getTeamNameQuery, teamID)
	return name, err
}

func (s *TeamStore) IsCaptain(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, isCaptainQuery, teamID, userID); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *TeamStore) MembersOf(ctx context.Context, teamID uuid.UUID) ([]uuid.UUID, error) {
	var members []uuid.UUID
	err := s.db.SelectContext(ctx, &members, getMembersQuery, teamID)
	return members, err
}

// CreateTeam inserts the team and enrols its captain as the first member.
func (s *TeamStore) CreateTeam(ctx context.Context, team *users.Team) error {
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, createTeamQuery, team); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, addMemberQuery, team.ID, team.CaptainID, team.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *TeamStore) AddMember(ctx context.Context, teamID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, addMemberQuery, teamID, userID, time.Now().UTC())
	return err
}
