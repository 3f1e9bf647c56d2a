package bracket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsPowerOfTwo(t *testing.T) {
	for n, want := range map[int]bool{0: false, 1: false, 2: true, 3: false, 4: true, 6: false, 8: true, 64: true, 96: false} {
		assert.Equal(t, want, IsPowerOfTwo(n), "n=%d", n)
	}
}

func TestRecomputeStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	future := Tournament{
		MaxTeams:       4,
		StartsAt:       now.Add(72 * time.Hour),
		SignupDeadline: now.Add(48 * time.Hour),
	}
	soon := Tournament{
		MaxTeams:       4,
		StartsAt:       now.Add(20 * time.Hour),
		SignupDeadline: now.Add(-4 * time.Hour),
	}

	testCases := []struct {
		name       string
		tournament Tournament
		status     TournamentStatus
		registered int
		want       TournamentStatus
	}{
		{"open stays open", future, TournamentSignupsOpen, 2, TournamentSignupsOpen},
		{"capacity fills", future, TournamentSignupsOpen, 4, TournamentFull},
		{"full regresses to open", future, TournamentFull, 3, TournamentSignupsOpen},
		{"time lock", soon, TournamentSignupsOpen, 1, TournamentLocked},
		{"full from locked", soon, TournamentLocked, 4, TournamentFull},
		{"full regresses only to locked", soon, TournamentFull, 3, TournamentLocked},
		{"locked is one-directional", future, TournamentLocked, 1, TournamentLocked},
		{"complete is terminal", future, TournamentComplete, 0, TournamentComplete},
		{"draft stays draft", future, TournamentDraft, 4, TournamentDraft},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := tc.tournament
			tr.Status = tc.status
			assert.Equal(t, tc.want, RecomputeStatus(tr, tc.registered, now))
		})
	}
}

func TestTournamentWindows(t *testing.T) {
	start := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	tr := Tournament{
		Status:         TournamentSignupsOpen,
		StartsAt:       start,
		SignupDeadline: start.Add(-BracketWindow),
	}

	assert.True(t, tr.SignupsOpen(start.Add(-30*time.Hour)))
	assert.False(t, tr.SignupsOpen(start.Add(-23*time.Hour)))

	assert.False(t, tr.InUnregisterLockout(start.Add(-25*time.Hour)))
	assert.True(t, tr.InUnregisterLockout(start.Add(-24*time.Hour)))

	assert.False(t, tr.BracketWindowOpen(start.Add(-25*time.Hour)))
	assert.True(t, tr.BracketWindowOpen(start.Add(-2*time.Hour)))

	assert.False(t, tr.CheckInClosed(start.Add(-31*time.Minute)))
	assert.True(t, tr.CheckInClosed(start.Add(-30*time.Minute)))

	tr.Status = TournamentLocked
	assert.False(t, tr.SignupsOpen(start.Add(-30*time.Hour)))
}
