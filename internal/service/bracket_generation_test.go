package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	f := newFixture(t)
	pool := f.teamsOf(8)

	tests := []struct {
		maxTeams   int
		registered int
	}{
		{2, 1}, {2, 2},
		{4, 1}, {4, 3}, {4, 4},
		{8, 1}, {8, 5}, {8, 6}, {8, 8},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of %d", tt.registered, tt.maxTeams), func(t *testing.T) {
			f.now = testNow
			tm := f.started(tt.maxTeams, pool[:tt.registered]...)

			matches, err := f.brackets.Generate(f.ctx, tm.ID)
			require.NoError(t, err)
			require.Len(t, matches, tt.maxTeams-1)

			byID := make(map[uuid.UUID]bracket.Match, len(matches))
			for _, m := range matches {
				byID[m.ID] = m
			}

			roots := 0
			for _, m := range matches {
				if m.NextMatchID == nil {
					roots++
					assert.Equal(t, bracket.Rounds(tt.maxTeams), m.RoundNumber)
					continue
				}
				next, ok := byID[*m.NextMatchID]
				require.True(t, ok, "next match must belong to the bracket")
				assert.Equal(t, m.RoundNumber+1, next.RoundNumber)
				assert.Equal(t, (m.MatchNumber+1)/2, next.MatchNumber)
			}
			assert.Equal(t, 1, roots)

			stored := f.bracket(tm.ID)
			assert.Len(t, stored, tt.maxTeams-1)
		})
	}
}

func TestGenerateByeCascade(t *testing.T) {
	f := newFixture(t)
	tm := f.started(8, f.teamsOf(5)...)

	_, err := f.brackets.Generate(f.ctx, tm.ID)
	require.NoError(t, err)

	for _, m := range f.bracket(tm.ID) {
		if m.RoundNumber != 1 {
			continue
		}
		oneSided := (m.TeamAID == nil) != (m.TeamBID == nil)
		if oneSided {
			assert.Equal(t, bracket.MatchComplete, m.Status, "bye in match %d must be resolved", m.MatchNumber)
			assert.NotNil(t, m.WinnerTeamID)
		}
	}

	// Slots 1..5 filled in order: match 3 is team 5 against a bye, match 4 is empty.
	matches := f.bracket(tm.ID)
	r1m3 := f.match(matches, 1, 3)
	r1m4 := f.match(matches, 1, 4)
	r2m2 := f.match(matches, 2, 2)
	assert.Equal(t, bracket.MatchComplete, r1m3.Status)
	assert.Equal(t, bracket.MatchScheduled, r1m4.Status)
	assert.Nil(t, r1m4.WinnerTeamID)

	// Team 5 has nobody left to meet in round 2, so it cascades into the final.
	assert.Equal(t, bracket.MatchComplete, r2m2.Status)
	require.NotNil(t, r2m2.WinnerTeamID)
	final := f.match(matches, 3, 1)
	require.NotNil(t, final.TeamBID)
	assert.Equal(t, *r2m2.WinnerTeamID, *final.TeamBID)
	assert.Nil(t, final.TeamAID)
}

func TestGenerateRejects(t *testing.T) {
	f := newFixture(t)

	empty := f.started(4)
	_, err := f.brackets.Generate(f.ctx, empty.ID)
	requireKind(t, err, ErrInvalidState)

	f.now = testNow
	tm := f.started(4, f.teamsOf(2)...)
	_, err = f.brackets.Generate(f.ctx, tm.ID)
	require.NoError(t, err)

	_, err = f.brackets.Generate(f.ctx, tm.ID)
	requireKind(t, err, ErrInvalidState)

	_, err = f.brackets.Generate(f.ctx, uuid.New())
	requireKind(t, err, ErrNotFound)
}

func TestGetBracketOutsideWindow(t *testing.T) {
	f := newFixture(t)
	tm := f.tournament(4, 72*time.Hour)
	f.register(tm.ID, f.teamsOf(2)...)

	view, err := f.brackets.GetBracket(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.False(t, view.Available)
	assert.NotEmpty(t, view.Message)
	assert.Empty(t, view.Matches)
	assert.Empty(t, f.bracket(tm.ID))
}

func TestGetBracketGeneratesOnce(t *testing.T) {
	f := newFixture(t)
	tm := f.started(4, f.teamsOf(4)...)

	first, err := f.brackets.GetBracket(f.ctx, tm.ID)
	require.NoError(t, err)
	require.True(t, first.Available)
	require.Len(t, first.Matches, 3)

	second, err := f.brackets.GetBracket(f.ctx, tm.ID)
	require.NoError(t, err)
	require.Len(t, second.Matches, 3)
	require.Len(t, second.Rounds, 2)
	assert.Equal(t, "Final", second.Rounds[1].Name)

	for i := range first.Matches {
		assert.Equal(t, first.Matches[i].ID, second.Matches[i].ID)
		assert.Equal(t, first.Matches[i].RoundNumber, second.Matches[i].RoundNumber)
		assert.Equal(t, first.Matches[i].MatchNumber, second.Matches[i].MatchNumber)
	}
	assert.Equal(t, 1, f.metrics.Count("brackets_generated"))
	assert.Equal(t, 1, f.hub.count(tm.ID))
}

func TestGetBracketWithoutTeams(t *testing.T) {
	f := newFixture(t)
	tm := f.started(4)

	view, err := f.brackets.GetBracket(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.False(t, view.Available)
	assert.Empty(t, f.bracket(tm.ID))
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	teams := f.teamsOf(4)
	tm := f.started(4, teams...)
	player := f.user("player", users.RoleUser)

	before, err := f.brackets.Generate(f.ctx, tm.ID)
	require.NoError(t, err)

	_, err = f.brackets.Regenerate(f.ctx, tm.ID, player)
	requireKind(t, err, ErrForbidden)

	after, err := f.brackets.Regenerate(f.ctx, tm.ID, f.admin)
	require.NoError(t, err)
	require.Len(t, after, 3)

	stored := f.bracket(tm.ID)
	require.Len(t, stored, 3)
	for _, m := range before {
		for _, s := range stored {
			assert.NotEqual(t, m.ID, s.ID, "old matches must be gone")
		}
	}
}
