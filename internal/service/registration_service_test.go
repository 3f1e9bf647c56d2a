package service

import (
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCapacity(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(3)
	tm := f.tournament(2, 72*time.Hour)

	f.register(tm.ID, teams[0])
	assert.Equal(t, bracket.TournamentSignupsOpen, f.getTournament(tm.ID).Status)

	f.register(tm.ID, teams[1])
	assert.Equal(t, bracket.TournamentFull, f.getTournament(tm.ID).Status)

	_, err := f.registrations.Register(f.ctx, tm.ID, teams[2].ID, teams[2].Captain, true)
	requireKind(t, err, ErrConflict)

	// Admins cannot push past capacity either.
	_, err = f.registrations.Register(f.ctx, tm.ID, teams[2].ID, f.admin, true)
	requireKind(t, err, ErrConflict)

	require.NoError(t, f.registrations.Unregister(f.ctx, tm.ID, teams[1].ID, teams[1].Captain))
	assert.Equal(t, bracket.TournamentSignupsOpen, f.getTournament(tm.ID).Status)

	f.register(tm.ID, teams[2])
	assert.Equal(t, bracket.TournamentFull, f.getTournament(tm.ID).Status)

	regs, err := f.registrations.List(f.ctx, tm.ID)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, teams[0].ID, regs[0].TeamID)
	assert.Equal(t, teams[2].ID, regs[1].TeamID)
}

func TestRegisterRepairsStaleFullStatus(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(3)
	tm := f.tournament(2, 72*time.Hour)
	f.register(tm.ID, teams[0], teams[1])

	// Simulate a status that drifted from the registration count.
	_, err := f.db.Exec("UPDATE tournaments SET status = 'SIGNUPS_OPEN' WHERE id = ?", tm.ID)
	require.NoError(t, err)

	_, err = f.registrations.Register(f.ctx, tm.ID, teams[2].ID, teams[2].Captain, true)
	requireKind(t, err, ErrConflict)
	assert.Equal(t, bracket.TournamentFull, f.getTournament(tm.ID).Status)
}

func TestRegisterConcurrentCapacity(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(8)
	tm := f.tournament(4, 72*time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, team := range teams {
		team := team
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.registrations.Register(f.ctx, tm.ID, team.ID, team.Captain, true)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, success)
	count, err := f.deps.Stores.Registrations.CountRegistered(f.ctx, f.db, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, bracket.TournamentFull, f.getTournament(tm.ID).Status)
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(2)
	stranger := f.user("stranger", users.RoleUser)

	open := f.tournament(8, 72*time.Hour)
	f.register(open.ID, teams[0])

	// A second team sharing a player with an already registered team.
	shared := f.team("shared", 0)
	require.NoError(t, f.teams.AddMember(f.ctx, shared.ID, teams[0].Members[1]))

	soon := f.tournament(8, 6*time.Hour)
	draft := f.tournament(8, 72*time.Hour)
	_, err := f.db.Exec("UPDATE tournaments SET status = 'DRAFT' WHERE id = ?", draft.ID)
	require.NoError(t, err)

	tests := []struct {
		name         string
		tournamentID uuid.UUID
		teamID       uuid.UUID
		requester    uuid.UUID
		kind         error
	}{
		{"unknown tournament", uuid.New(), teams[1].ID, teams[1].Captain, ErrNotFound},
		{"unknown team", open.ID, uuid.New(), f.admin, ErrNotFound},
		{"not the captain", open.ID, teams[1].ID, stranger, ErrForbidden},
		{"already registered", open.ID, teams[0].ID, teams[0].Captain, ErrConflict},
		{"player on another team", open.ID, shared.ID, shared.Captain, ErrConflict},
		{"inside the 12h lockout", soon.ID, teams[1].ID, teams[1].Captain, ErrInvalidState},
		{"draft tournament", draft.ID, teams[1].ID, teams[1].Captain, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registrations.Register(f.ctx, tt.tournamentID, tt.teamID, tt.requester, true)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestRegisterCreatorOverridesLockout(t *testing.T) {
	f := newFixture(t)
	team := f.team("late", 1)
	tm := f.tournament(4, 6*time.Hour)

	reg, err := f.registrations.Register(f.ctx, tm.ID, team.ID, f.admin, false)
	require.NoError(t, err)
	assert.Equal(t, bracket.RegistrationActive, reg.Status)
	assert.Equal(t, bracket.TournamentLocked, f.getTournament(tm.ID).Status)
}

func TestRegisterAfterBracketGenerated(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(4)
	tm := f.started(4, teams[0], teams[1], teams[2])
	_, err := f.brackets.Generate(f.ctx, tm.ID)
	require.NoError(t, err)

	_, err = f.registrations.Register(f.ctx, tm.ID, teams[3].ID, f.admin, true)
	requireKind(t, err, ErrInvalidState)

	regs, err := f.registrations.List(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 3)
}

func TestRegisterNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	team := f.team("repeat", 1)
	tm := f.tournament(4, 72*time.Hour)

	f.register(tm.ID, team)
	require.NoError(t, f.registrations.Unregister(f.ctx, tm.ID, team.ID, team.Captain))
	f.register(tm.ID, team)

	assert.Equal(t, 1, f.keyCount(activity.TeamRegisteredTournament, tm.ID, team.ID))
	assert.Equal(t, 1, f.metrics.Count("activities_emitted"))
	assert.Equal(t, 1, f.metrics.Count("activities_deduplicated"))

	regs, err := f.registrations.List(f.ctx, tm.ID)
	require.NoError(t, err)
	require.Len(t, regs, 1, "reactivation must reuse the row")
}

func TestUnregister(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(3)
	tm := f.tournament(4, 72*time.Hour)
	f.register(tm.ID, teams[0], teams[1])

	t.Run("unknown registration", func(t *testing.T) {
		err := f.registrations.Unregister(f.ctx, tm.ID, teams[2].ID, teams[2].Captain)
		requireKind(t, err, ErrNotFound)
	})

	t.Run("stranger", func(t *testing.T) {
		err := f.registrations.Unregister(f.ctx, tm.ID, teams[0].ID, teams[1].Captain)
		requireKind(t, err, ErrForbidden)
	})

	t.Run("captain inside 24h", func(t *testing.T) {
		f.setClock(tm, 20*time.Hour)
		err := f.registrations.Unregister(f.ctx, tm.ID, teams[0].ID, teams[0].Captain)
		requireKind(t, err, ErrInvalidState)
	})

	t.Run("admin inside 24h", func(t *testing.T) {
		require.NoError(t, f.registrations.Unregister(f.ctx, tm.ID, teams[0].ID, f.admin))
		reg, err := f.deps.Stores.Registrations.GetRegistration(f.ctx, f.db, tm.ID, teams[0].ID)
		require.NoError(t, err)
		assert.Equal(t, bracket.RegistrationCancelled, reg.Status)
		assert.False(t, reg.CheckedIn)
	})

	t.Run("already cancelled", func(t *testing.T) {
		require.NoError(t, f.registrations.Unregister(f.ctx, tm.ID, teams[0].ID, f.admin))
	})
}

func TestEligibility(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(2)
	outsider := f.user("outsider", users.RoleUser)
	tm := f.tournament(4, 72*time.Hour)
	f.register(tm.ID, teams[0])

	e, err := f.registrations.Eligibility(f.ctx, tm.ID, teams[0].Members[1])
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{teams[0].ID}, e.RegisteredTeamIDs)
	assert.ElementsMatch(t, teams[0].Members, e.ConflictedUserIDs)
	assert.True(t, e.UserCommitted)

	e, err = f.registrations.Eligibility(f.ctx, tm.ID, outsider)
	require.NoError(t, err)
	assert.False(t, e.UserCommitted)

	_, err = f.registrations.Eligibility(f.ctx, uuid.New(), outsider)
	requireKind(t, err, ErrNotFound)
}

func TestExpandedRegistrations(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(2)
	tm := f.tournament(4, 72*time.Hour)
	f.register(tm.ID, teams[1], teams[0])

	rows, err := f.registrations.Expanded(f.ctx, tm.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, teams[1].ID, rows[0].TeamID)
	assert.Equal(t, teams[1].Name, rows[0].TeamName)
	assert.Equal(t, 1, rows[0].Seed)
	assert.Equal(t, 2, rows[1].Seed)
	assert.Equal(t, []string{teams[1].Name + "-captain", teams[1].Name + "-player-1"}, rows[0].Members)
}

func TestUnregisterClearsTeamFromBracket(t *testing.T) {
	tests := []struct {
		name              string
		opponentCheckedIn bool
		wantStatus        bracket.MatchStatus
	}{
		{"checked-in opponent advances", true, bracket.MatchComplete},
		{"absent opponent waits", false, bracket.MatchScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			teams := f.teamsOf(4)
			tm := f.started(4, teams...)
			if tt.opponentCheckedIn {
				f.checkIn(tm.ID, teams[0])
			}
			_, err := f.brackets.Generate(f.ctx, tm.ID)
			require.NoError(t, err)

			require.NoError(t, f.registrations.Unregister(f.ctx, tm.ID, teams[1].ID, f.admin))

			matches := f.bracket(tm.ID)
			semi := f.match(matches, 1, 1)
			assert.False(t, semi.HasTeam(teams[1].ID))
			assert.Equal(t, tt.wantStatus, semi.Status)
			require.NotNil(t, semi.TeamAID)
			assert.Equal(t, teams[0].ID, *semi.TeamAID)

			final := f.match(matches, 2, 1)
			if tt.opponentCheckedIn {
				require.NotNil(t, final.TeamAID)
				assert.Equal(t, teams[0].ID, *final.TeamAID)
			} else {
				assert.Nil(t, final.TeamAID)
			}
			assert.Equal(t, 2, f.hub.count(tm.ID))

			// The withdrawn team can no longer be credited with a result.
			_, err = f.matches.ReportScore(f.ctx, tm.ID, semi.ID, 5, 9, f.admin)
			requireKind(t, err, ErrInvalidState)
			for _, id := range teams[1].Members {
				assert.Zero(t, f.stats(id).MatchWins)
			}
		})
	}
}
