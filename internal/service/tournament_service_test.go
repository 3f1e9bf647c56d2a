package service

import (
	"testing"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/AdamBeresnev/league-brackets/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput(now time.Time) CreateTournamentInput {
	return CreateTournamentInput{
		Name:       "Summer Slam",
		FormatSize: 3,
		MaxTeams:   8,
		StartsAt:   now.Add(7 * 24 * time.Hour),
		Location:   "Court 4",
		PrizeCents: utils.Ptr(int64(50000)),
	}
}

func TestCreateTournament(t *testing.T) {
	f := newFixture(t)

	tm, err := f.tournaments.Create(f.ctx, validInput(f.clock()), f.admin)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentSignupsOpen, tm.Status)
	assert.Equal(t, tm.StartsAt.Add(-24*time.Hour), tm.SignupDeadline)
	assert.Equal(t, f.admin, tm.CreatedBy)

	got, err := f.tournaments.Get(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, tm.Name, got.Name)
	assert.WithinDuration(t, tm.StartsAt, got.StartsAt, time.Second)
}

func TestCreateTournamentValidation(t *testing.T) {
	f := newFixture(t)
	player := f.user("player", users.RoleUser)

	tests := []struct {
		name   string
		modify func(*CreateTournamentInput)
		kind   error
	}{
		{"missing name", func(in *CreateTournamentInput) { in.Name = " " }, ErrInvalidInput},
		{"missing prize", func(in *CreateTournamentInput) { in.PrizeCents = nil }, ErrInvalidInput},
		{"not a power of two", func(in *CreateTournamentInput) { in.MaxTeams = 6 }, ErrInvalidInput},
		{"one team", func(in *CreateTournamentInput) { in.MaxTeams = 1 }, ErrInvalidInput},
		{"negative prize", func(in *CreateTournamentInput) { in.PrizeCents = utils.Ptr(int64(-1)) }, ErrInvalidInput},
		{"in the past", func(in *CreateTournamentInput) { in.StartsAt = f.clock().Add(-time.Hour) }, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(f.clock())
			tt.modify(&in)
			_, err := f.tournaments.Create(f.ctx, in, f.admin)
			requireKind(t, err, tt.kind)
		})
	}

	t.Run("not an admin", func(t *testing.T) {
		_, err := f.tournaments.Create(f.ctx, validInput(f.clock()), player)
		requireKind(t, err, ErrForbidden)
	})
}

func TestDraftTournament(t *testing.T) {
	f := newFixture(t)
	in := validInput(f.clock())
	in.Draft = true

	tm, err := f.tournaments.Create(f.ctx, in, f.admin)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentDraft, tm.Status)

	opened, err := f.tournaments.Open(f.ctx, tm.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentSignupsOpen, opened.Status)

	_, err = f.tournaments.Open(f.ctx, tm.ID, f.admin)
	requireKind(t, err, ErrInvalidState)
}

func TestListTournaments(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(2)

	upcoming := f.tournament(4, 72*time.Hour)
	f.register(upcoming.ID, teams[0])

	past := f.started(2, teams...)
	_, err := f.brackets.Generate(f.ctx, past.ID)
	require.NoError(t, err)
	f.checkIn(past.ID, teams...)
	final := f.match(f.bracket(past.ID), 1, 1)
	_, err = f.matches.ReportScore(f.ctx, past.ID, final.ID, 2, 1, f.admin)
	require.NoError(t, err)
	_, err = f.finalizer.Finalize(f.ctx, past.ID, f.admin)
	require.NoError(t, err)

	live, err := f.tournaments.List(f.ctx, ScopeLive)
	require.NoError(t, err)
	assert.Empty(t, live)

	list, err := f.tournaments.List(f.ctx, ScopeUpcoming)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, upcoming.ID, list[0].ID)

	list, err = f.tournaments.List(f.ctx, ScopePast)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, past.ID, list[0].ID)

	forTeam, err := f.tournaments.ListForTeam(f.ctx, teams[0].ID, false)
	require.NoError(t, err)
	require.Len(t, forTeam, 1)
	assert.Equal(t, upcoming.ID, forTeam[0].ID)

	forTeam, err = f.tournaments.ListForTeam(f.ctx, teams[0].ID, true)
	require.NoError(t, err)
	require.Len(t, forTeam, 1)
	assert.Equal(t, past.ID, forTeam[0].ID)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeUpcoming, s)

	s, err = ParseScope("past")
	require.NoError(t, err)
	assert.Equal(t, ScopePast, s)

	_, err = ParseScope("someday")
	requireKind(t, err, ErrInvalidInput)
}
