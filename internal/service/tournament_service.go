package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentService struct {
	*Deps
}

func NewTournamentService(d *Deps) *TournamentService {
	return &TournamentService{Deps: d}
}

type CreateTournamentInput struct {
	Name       string    `json:"name"`
	FormatSize int       `json:"format_size"`
	MaxTeams   int       `json:"max_teams"`
	StartsAt   time.Time `json:"starts_at"`
	Location   string    `json:"location"`
	PrizeCents *int64    `json:"prize_cents"`
	Draft      bool      `json:"draft"`
}

func (in CreateTournamentInput) validate(now time.Time) error {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if in.FormatSize <= 0 {
		missing = append(missing, "format_size")
	}
	if in.MaxTeams == 0 {
		missing = append(missing, "max_teams")
	}
	if in.StartsAt.IsZero() {
		missing = append(missing, "starts_at")
	}
	if strings.TrimSpace(in.Location) == "" {
		missing = append(missing, "location")
	}
	if in.PrizeCents == nil {
		missing = append(missing, "prize_cents")
	}
	if len(missing) > 0 {
		return invalidInput("missing required fields: %s", strings.Join(missing, ", "))
	}

	if !bracket.IsPowerOfTwo(in.MaxTeams) {
		return invalidInput("max_teams must be a power of two")
	}
	if *in.PrizeCents < 0 {
		return invalidInput("prize_cents must not be negative")
	}
	if !in.StartsAt.After(now) {
		return invalidInput("starts_at must be in the future")
	}
	return nil
}

// Create opens a new tournament. Signups close 24h before start.
func (s *TournamentService) Create(ctx context.Context, in CreateTournamentInput, requesterID uuid.UUID) (*bracket.Tournament, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	now := s.Now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	startsAt := in.StartsAt.UTC()
	t := &bracket.Tournament{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(in.Name),
		FormatSize:     in.FormatSize,
		MaxTeams:       in.MaxTeams,
		SignupDeadline: startsAt.Add(-bracket.BracketWindow),
		StartsAt:       startsAt,
		Location:       strings.TrimSpace(in.Location),
		PrizeCents:     *in.PrizeCents,
		Status:         bracket.TournamentSignupsOpen,
		CreatedBy:      requesterID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.Draft {
		t.Status = bracket.TournamentDraft
	} else {
		t.Status = bracket.RecomputeStatus(*t, 0, now)
	}

	if err := s.Stores.Tournaments.CreateTournament(ctx, s.DB, t); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return t, nil
}

// Open moves a draft tournament into signups.
func (s *TournamentService) Open(ctx context.Context, id, requesterID uuid.UUID) (*bracket.Tournament, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	var out *bracket.Tournament
	err := s.inTournament(ctx, "open", id, func(tx *sqlx.Tx, t *bracket.Tournament, _ *outbox) error {
		if t.Status != bracket.TournamentDraft {
			return invalidState("tournament is not a draft")
		}
		t.Status = bracket.TournamentSignupsOpen
		if err := s.Stores.Tournaments.UpdateTournamentStatus(ctx, tx, t.ID, t.Status, s.Now()); err != nil {
			return fmt.Errorf("failed to open tournament: %w", err)
		}
		if err := s.syncStatus(ctx, tx, t, s.Now()); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (s *TournamentService) Get(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	return s.getTournament(ctx, id)
}

type Scope string

const (
	ScopeUpcoming Scope = "upcoming"
	ScopeLive     Scope = "live"
	ScopePast     Scope = "past"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeUpcoming:
		return ScopeUpcoming, nil
	case ScopeLive, ScopePast:
		return Scope(s), nil
	}
	return "", invalidInput("unknown scope %q", s)
}

func (s *TournamentService) List(ctx context.Context, scope Scope) ([]bracket.Tournament, error) {
	now := s.Now()
	switch scope {
	case ScopeLive:
		return s.Stores.Tournaments.ListLive(ctx, now)
	case ScopePast:
		return s.Stores.Tournaments.ListPast(ctx)
	default:
		return s.Stores.Tournaments.ListUpcoming(ctx, now)
	}
}

// ListForTeam returns the tournaments a team is registered in, either still to be
// played or already complete.
func (s *TournamentService) ListForTeam(ctx context.Context, teamID uuid.UUID, past bool) ([]bracket.Tournament, error) {
	if _, err := s.teamName(ctx, teamID); err != nil {
		return nil, err
	}
	return s.Stores.Tournaments.ListForTeam(ctx, teamID, past)
}
