package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/AdamBeresnev/league-brackets/internal/store"
	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserService is the account lookup used for permission checks.
type UserService struct {
	db    *sqlx.DB
	store *store.UserStore
	stats *store.StatsStore
}

func NewUserService(db *sqlx.DB, userStore *store.UserStore) *UserService {
	return &UserService{db: db, store: userStore, stats: store.NewStatsStore(db)}
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user not found")
	}
	return user, err
}

func (s *UserService) Username(ctx context.Context, id uuid.UUID) (string, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// Stats returns the user's basketball record; a user with no results gets zeros.
func (s *UserService) Stats(ctx context.Context, id uuid.UUID) (*bracket.UserStats, error) {
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}
	stats, err := s.stats.GetStats(ctx, id, bracket.SportBasketball)
	if errors.Is(err, sql.ErrNoRows) {
		return &bracket.UserStats{UserID: id, Sport: bracket.SportBasketball}, nil
	}
	return stats, err
}
