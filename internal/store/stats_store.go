package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type StatsStore struct {
	db *sqlx.DB
}

// StatsDelta is added to each user's running totals.
type StatsDelta struct {
	Wins   int
	Losses int
	Titles int
}

const (
	addStatsQuery = `
		INSERT INTO user_stats (user_id, sport, match_wins, match_losses, titles, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, sport) DO UPDATE SET
			match_wins = match_wins + excluded.match_wins,
			match_losses = match_losses + excluded.match_losses,
			titles = titles + excluded.titles,
			last_updated = excluded.last_updated
	`
	getStatsQuery = "SELECT * FROM user_stats WHERE user_id = ? AND sport = ?"
)

func NewStatsStore(db *sqlx.DB) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) AddStats(ctx context.Context, q sqlx.ExecerContext, userIDs []uuid.UUID, sport string, delta StatsDelta, now time.Time) error {
	for _, id := range userIDs {
		if _, err := q.ExecContext(ctx, addStatsQuery, id, sport, delta.Wins, delta.Losses, delta.Titles, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *StatsStore) GetStats(ctx context.Context, userID uuid.UUID, sport string) (*bracket.UserStats, error) {
	var stats bracket.UserStats
	if err := s.db.GetContext(ctx, &stats, getStatsQuery, userID, sport); err != nil {
		return nil, err
	}
	return &stats, nil
}
