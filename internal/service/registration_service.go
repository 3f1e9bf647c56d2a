package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RegistrationService struct {
	*Deps
}

func NewRegistrationService(d *Deps) *RegistrationService {
	return &RegistrationService{Deps: d}
}

// Register enters a team into a tournament.
func (s *RegistrationService) Register(ctx context.Context, tournamentID, teamID, requesterID uuid.UUID, agreementsAccepted bool) (*bracket.Registration, error) {
	var (
		reg      *bracket.Registration
		overfull bool
	)
	err := s.inTournament(ctx, "register", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		now := s.Now()

		teamName, err := s.teamName(ctx, teamID)
		if err != nil {
			return err
		}

		count, err := s.Stores.Registrations.CountRegistered(ctx, tx, t.ID)
		if err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}
		if count >= t.MaxTeams {
			overfull = t.Status != bracket.TournamentFull
			return conflict("tournament is full")
		}

		switch t.Status {
		case bracket.TournamentComplete:
			return invalidState("tournament is complete")
		case bracket.TournamentDraft:
			return invalidState("signups are not open yet")
		}

		generated, err := s.Stores.Matches.CountMatches(ctx, tx, t.ID)
		if err != nil {
			return fmt.Errorf("failed to count matches: %w", err)
		}
		if generated > 0 {
			return invalidState("bracket is already generated")
		}

		override, err := s.canOverride(ctx, t, requesterID)
		if err != nil {
			return err
		}
		if !override && !t.SignupsOpen(now) {
			return invalidState("signups are closed")
		}

		if !override {
			captain, err := s.Roster.IsCaptain(ctx, teamID, requesterID)
			if err != nil {
				return fmt.Errorf("failed to check captain: %w", err)
			}
			if !captain {
				return forbidden("only the team captain can register the team")
			}
		}

		existing, err := s.Stores.Registrations.GetRegistration(ctx, tx, t.ID, teamID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to get registration: %w", err)
		}
		if existing != nil && existing.IsActive() {
			return conflict("team is already registered")
		}

		conflicted, err := s.memberConflicts(ctx, tx, t.ID, teamID)
		if err != nil {
			return err
		}
		if len(conflicted) > 0 {
			return conflict("%d team member(s) already play for another team in this tournament", len(conflicted))
		}

		reg, err = s.Stores.Registrations.UpsertRegistration(ctx, tx, &bracket.Registration{
			ID:                 uuid.New(),
			TournamentID:       t.ID,
			TeamID:             teamID,
			Status:             bracket.RegistrationActive,
			AgreementsAccepted: agreementsAccepted,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return fmt.Errorf("failed to save registration: %w", err)
		}

		if err := s.syncStatus(ctx, tx, t, now); err != nil {
			return err
		}

		actor := requesterID
		out.emit(activity.Event{
			Type:          activity.TeamRegisteredTournament,
			SubjectTeamID: teamID,
			ActorUserID:   &actor,
			TeamName:      &teamName,
			TournamentID:  &t.ID,
			DedupeKey:     activity.Key(activity.TeamRegisteredTournament, t.ID, teamID),
			Extras:        activity.Extras{"tournament_name": t.Name},
		})
		return nil
	})

	if overfull {
		// The failed registration rolled back, so the FULL repair gets its own transaction.
		if _, serr := s.RefreshStatus(ctx, tournamentID); serr != nil {
			slog.Error("failed to mark tournament full", "tournament_id", tournamentID, "error", serr)
		}
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// memberConflicts returns members of teamID already committed to another registered team.
func (s *RegistrationService) memberConflicts(ctx context.Context, q sqlx.QueryerContext, tournamentID, teamID uuid.UUID) ([]uuid.UUID, error) {
	committed, err := s.committedUsers(ctx, q, tournamentID, teamID)
	if err != nil {
		return nil, err
	}
	members, err := s.Roster.MembersOf(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team members: %w", err)
	}

	var conflicted []uuid.UUID
	for _, m := range members {
		if _, ok := committed[m]; ok {
			conflicted = append(conflicted, m)
		}
	}
	return conflicted, nil
}

// committedUsers collects members of every active team except skip.
func (s *RegistrationService) committedUsers(ctx context.Context, q sqlx.QueryerContext, tournamentID, skip uuid.UUID) (map[uuid.UUID]struct{}, error) {
	teamIDs, err := s.Stores.Registrations.RegisteredTeamIDs(ctx, q, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered teams: %w", err)
	}
	others := teamIDs[:0:0]
	for _, id := range teamIDs {
		if id != skip {
			others = append(others, id)
		}
	}

	rosters, err := s.membersOf(ctx, others...)
	if err != nil {
		return nil, err
	}
	users := make(map[uuid.UUID]struct{})
	for _, members := range rosters {
		for _, m := range members {
			users[m] = struct{}{}
		}
	}
	return users, nil
}

// Unregister withdraws a team. Withdrawing an inactive registration is a no-op.
func (s *RegistrationService) Unregister(ctx context.Context, tournamentID, teamID, requesterID uuid.UUID) error {
	return s.inTournament(ctx, "unregister", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		now := s.Now()

		reg, err := s.Stores.Registrations.GetRegistration(ctx, tx, t.ID, teamID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("registration not found")
		}
		if err != nil {
			return fmt.Errorf("failed to get registration: %w", err)
		}

		override, err := s.canOverride(ctx, t, requesterID)
		if err != nil {
			return err
		}
		if !override {
			captain, err := s.Roster.IsCaptain(ctx, teamID, requesterID)
			if err != nil {
				return fmt.Errorf("failed to check captain: %w", err)
			}
			if !captain {
				return forbidden("only the team captain can withdraw the team")
			}
			if t.InUnregisterLockout(now) {
				return invalidState("unregistration closed 24 hours before start")
			}
		}

		if !reg.IsActive() {
			return nil
		}
		if t.Status == bracket.TournamentComplete {
			return invalidState("tournament is complete")
		}

		if err := s.Stores.Registrations.CancelRegistration(ctx, tx, t.ID, teamID, now); err != nil {
			return fmt.Errorf("failed to cancel registration: %w", err)
		}
		if err := s.withdrawFromBracket(ctx, tx, t, teamID, requesterID, out); err != nil {
			return err
		}
		return s.syncStatus(ctx, tx, t, now)
	})
}

// withdrawFromBracket clears a withdrawn team out of unplayed matches and lets checked-in
// opponents through. Runs after the registration is cancelled.
func (s *RegistrationService) withdrawFromBracket(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, teamID, actor uuid.UUID, out *outbox) error {
	tree, err := s.loadTree(ctx, tx, t.ID)
	if err != nil || tree == nil {
		return err
	}
	seeded := slices.ContainsFunc(tree.Matches, func(m bracket.Match) bool {
		return !m.IsComplete() && m.HasTeam(teamID)
	})
	if !seeded {
		return nil
	}

	present, err := s.presence(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	before := tree.Snapshot()
	tree.StripTeams(func(id uuid.UUID) bool { return id == teamID })
	resolved := tree.AutoAdvance(present.has)

	if err := s.Stores.Matches.UpdateMatches(ctx, tx, tree.Changed(before), s.Now()); err != nil {
		return fmt.Errorf("failed to update matches: %w", err)
	}
	out.broadcast = true
	slog.Info("withdrawn team removed from bracket", "tournament_id", t.ID, "team_id", teamID, "advanced", len(resolved))

	_, err = s.finalizeIfResolved(ctx, tx, t, tree, resolved, present, &actor, out)
	return err
}

type Eligibility struct {
	RegisteredTeamIDs []uuid.UUID `json:"registered_team_ids"`
	ConflictedUserIDs []uuid.UUID `json:"conflicted_user_ids"`
	// UserCommitted is set when the asking user already plays for a registered team.
	UserCommitted bool `json:"user_committed"`
}

// Eligibility lists the teams and players already taken in a tournament.
func (s *RegistrationService) Eligibility(ctx context.Context, tournamentID, userID uuid.UUID) (*Eligibility, error) {
	if _, err := s.getTournament(ctx, tournamentID); err != nil {
		return nil, err
	}

	teamIDs, err := s.Stores.Registrations.RegisteredTeamIDs(ctx, s.DB, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered teams: %w", err)
	}
	committed, err := s.committedUsers(ctx, s.DB, tournamentID, uuid.Nil)
	if err != nil {
		return nil, err
	}

	e := &Eligibility{RegisteredTeamIDs: teamIDs, ConflictedUserIDs: make([]uuid.UUID, 0, len(committed))}
	if e.RegisteredTeamIDs == nil {
		e.RegisteredTeamIDs = []uuid.UUID{}
	}
	for id := range committed {
		e.ConflictedUserIDs = append(e.ConflictedUserIDs, id)
	}
	_, e.UserCommitted = committed[userID]
	return e, nil
}

func (s *RegistrationService) List(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Registration, error) {
	if _, err := s.getTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	regs, err := s.Stores.Registrations.ListRegistered(ctx, s.DB, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	if regs == nil {
		regs = []bracket.Registration{}
	}
	return regs, nil
}

func (s *RegistrationService) Expanded(ctx context.Context, tournamentID uuid.UUID) ([]bracket.ExpandedRegistration, error) {
	if _, err := s.getTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	rows, err := s.Stores.Registrations.ListExpanded(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	if rows == nil {
		return []bracket.ExpandedRegistration{}, nil
	}

	teamIDs := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		teamIDs[i] = r.TeamID
	}
	rosters, err := s.membersOf(ctx, teamIDs...)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		members := rosters[rows[i].TeamID]
		rows[i].Members = make([]string, 0, len(members))
		for _, m := range members {
			name, err := s.Users.Username(ctx, m)
			if err != nil {
				return nil, fmt.Errorf("failed to get username: %w", err)
			}
			rows[i].Members = append(rows[i].Members, name)
		}
	}
	return rows, nil
}
