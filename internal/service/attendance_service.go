package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type AttendanceService struct {
	*Deps
}

func NewAttendanceService(d *Deps) *AttendanceService {
	return &AttendanceService{Deps: d}
}

// EnforceResult describes what one enforcement pass did.
type EnforceResult struct {
	Present   int  `json:"present"`
	Absent    int  `json:"absent"`
	Stripped  int  `json:"stripped"`
	Advanced  int  `json:"advanced"`
	Cancelled bool `json:"cancelled"`
	Finalized bool `json:"finalized"`
}

func (s *AttendanceService) List(ctx context.Context, tournamentID uuid.UUID) ([]bracket.ExpandedRegistration, error) {
	if _, err := s.getTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	rows, err := s.Stores.Registrations.ListExpanded(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	if rows == nil {
		rows = []bracket.ExpandedRegistration{}
	}
	return rows, nil
}

// SetCheckIn flips a team's check-in flag. Marking a team absent enforces attendance in
// the same transaction.
func (s *AttendanceService) SetCheckIn(ctx context.Context, tournamentID, teamID uuid.UUID, checkedIn bool, requesterID uuid.UUID) (*EnforceResult, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	var result *EnforceResult
	err := s.inTournament(ctx, "check_in", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		if t.Status == bracket.TournamentComplete {
			return invalidState("tournament is complete")
		}
		reg, err := s.Stores.Registrations.GetRegistration(ctx, tx, t.ID, teamID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("registration not found")
		}
		if err != nil {
			return fmt.Errorf("failed to get registration: %w", err)
		}
		if !reg.IsActive() {
			return invalidState("team is not registered")
		}

		if reg.CheckedIn != checkedIn {
			if err := s.Stores.Registrations.SetCheckedIn(ctx, tx, t.ID, teamID, checkedIn, s.Now()); err != nil {
				return fmt.Errorf("failed to set check-in: %w", err)
			}
			slog.Info("check-in changed", "tournament_id", t.ID, "team_id", teamID, "checked_in", checkedIn)
		}
		if checkedIn {
			result = &EnforceResult{}
			return nil
		}

		actor := requesterID
		result, err = s.enforce(ctx, tx, t, &actor, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Enforce strips absent teams from unplayed matches and resolves what that leaves behind.
func (s *AttendanceService) Enforce(ctx context.Context, tournamentID, requesterID uuid.UUID) (*EnforceResult, error) {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return nil, err
	}

	var result *EnforceResult
	err := s.inTournament(ctx, "enforce_attendance", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error {
		actor := requesterID
		var err error
		result, err = s.enforce(ctx, tx, t, &actor, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Deps) enforce(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, actor *uuid.UUID, out *outbox) (*EnforceResult, error) {
	result := &EnforceResult{}
	if t.Status == bracket.TournamentComplete {
		return result, nil
	}
	now := d.Now()

	present, err := d.presence(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	for _, in := range present {
		if in {
			result.Present++
		} else {
			result.Absent++
		}
	}

	d.Metrics.IncAttendanceEnforced()

	tree, err := d.loadTree(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		if result.Present < 2 && t.CheckInClosed(now) {
			result.Cancelled = true
			return result, d.cancelTx(ctx, tx, t, "not enough teams checked in", now, out)
		}
		return result, nil
	}

	before := tree.Snapshot()
	result.Stripped = tree.StripTeams(func(id uuid.UUID) bool { return !present[id] })
	resolved := tree.AutoAdvance(present.has)
	result.Advanced = len(resolved)

	if result.Present < 2 {
		// A walkover must not stand in for a championship.
		tree.Restore(before)
		result.Stripped, result.Advanced = 0, 0
		if !t.CheckInClosed(now) {
			return result, nil
		}
		result.Cancelled = true
		return result, d.cancelTx(ctx, tx, t, "not enough teams checked in", now, out)
	}

	changed := tree.Changed(before)
	if len(changed) > 0 {
		if err := d.Stores.Matches.UpdateMatches(ctx, tx, changed, now); err != nil {
			return nil, fmt.Errorf("failed to update matches: %w", err)
		}
		out.broadcast = true
		slog.Info("attendance enforced", "tournament_id", t.ID, "stripped", result.Stripped, "advanced", result.Advanced)
	}

	result.Finalized, err = d.finalizeIfResolved(ctx, tx, t, tree, resolved, present, actor, out)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// attendance maps every active team to its check-in flag.
type attendance map[uuid.UUID]bool

func (a attendance) has(teamID uuid.UUID) bool { return a[teamID] }

func (d *Deps) presence(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (attendance, error) {
	regs, err := d.Stores.Registrations.ListRegistered(ctx, q, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	present := make(attendance, len(regs))
	for _, r := range regs {
		present[r.TeamID] = r.CheckedIn
	}
	return present, nil
}

// finalizeIfResolved completes the tournament when an auto-advance pass decided the final
// and the winner is checked in.
func (d *Deps) finalizeIfResolved(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, tree *bracket.Tree, resolved []int, present attendance, actor *uuid.UUID, out *outbox) (bool, error) {
	final := tree.Final()
	finalIdx, _ := tree.Index(final.ID)
	if !slices.Contains(resolved, finalIdx) || final.WinnerTeamID == nil || !present[*final.WinnerTeamID] {
		return false, nil
	}
	if err := d.finalizeTx(ctx, tx, t, *final.WinnerTeamID, actor, out); err != nil {
		return false, err
	}
	return true, nil
}
