package bracket

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformedTree = errors.New("malformed bracket")
	ErrTie           = errors.New("ties are not allowed")
	ErrMatchComplete = errors.New("match is already complete")
	ErrMissingTeams  = errors.New("match does not have two teams")
)

// Tree is a single-elimination bracket held as a flat arena. Links between matches are
// slice indexes resolved once on load, so advancing never goes back to the store.
type Tree struct {
	Matches []Match

	rounds  [][]int  // [round-1][match-1] -> arena index
	next    []int    // arena index of the next match, -1 for the final
	feeders [][2]int // arena index feeding slot A / slot B, -1 for none
	index   map[uuid.UUID]int
}

// Rounds returns log2 of a power-of-two bracket size.
func Rounds(size int) int {
	return int(math.Log2(float64(size)))
}

// Pad places team ids in order and fills the remaining slots with byes.
func Pad(teamIDs []uuid.UUID, size int) []*uuid.UUID {
	slots := make([]*uuid.UUID, size)
	for i := range teamIDs {
		if i >= size {
			break
		}
		id := teamIDs[i]
		slots[i] = &id
	}
	return slots
}

// NewTree wires an empty bracket for len(seeded) slots and assigns round 1 pairings from
// consecutive positions of seeded. A nil slot is a bye.
func NewTree(tournamentID uuid.UUID, seeded []*uuid.UUID, now time.Time) (*Tree, error) {
	size := len(seeded)
	if !IsPowerOfTwo(size) {
		return nil, fmt.Errorf("bracket size %d is not a power of two", size)
	}
	totalRounds := Rounds(size)

	matches := make([]Match, 0, size-1)
	ids := make([][]uuid.UUID, totalRounds+1)

	// Build from the final backwards so every match links to an existing id.
	for r := totalRounds; r >= 1; r-- {
		count := size >> r
		ids[r] = make([]uuid.UUID, count+1)

		for n := 1; n <= count; n++ {
			m := Match{
				ID:           uuid.New(),
				TournamentID: tournamentID,
				RoundNumber:  r,
				MatchNumber:  n,
				Status:       MatchScheduled,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			if r < totalRounds {
				nextID := ids[r+1][(n+1)/2]
				slot := SlotA
				if n%2 == 0 {
					slot = SlotB
				}
				m.NextMatchID = &nextID
				m.NextMatchSlot = &slot
			}

			if r == 1 {
				m.TeamAID = seeded[2*(n-1)]
				m.TeamBID = seeded[2*(n-1)+1]
			}

			ids[r][n] = m.ID
			matches = append(matches, m)
		}
	}

	return LoadTree(matches)
}

// LoadTree indexes persisted matches of one tournament.
func LoadTree(matches []Match) (*Tree, error) {
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no matches", ErrMalformedTree)
	}

	t := &Tree{
		Matches: append([]Match(nil), matches...),
		index:   make(map[uuid.UUID]int, len(matches)),
	}
	sort.Slice(t.Matches, func(i, j int) bool {
		if t.Matches[i].RoundNumber != t.Matches[j].RoundNumber {
			return t.Matches[i].RoundNumber < t.Matches[j].RoundNumber
		}
		return t.Matches[i].MatchNumber < t.Matches[j].MatchNumber
	})

	totalRounds := t.Matches[len(t.Matches)-1].RoundNumber
	t.rounds = make([][]int, totalRounds)
	for i, m := range t.Matches {
		if m.RoundNumber < 1 || m.MatchNumber != len(t.rounds[m.RoundNumber-1])+1 {
			return nil, fmt.Errorf("%w: unexpected match %d in round %d", ErrMalformedTree, m.MatchNumber, m.RoundNumber)
		}
		t.rounds[m.RoundNumber-1] = append(t.rounds[m.RoundNumber-1], i)
		t.index[m.ID] = i
	}
	for r, round := range t.rounds {
		if want := 1 << (totalRounds - r - 1); len(round) != want {
			return nil, fmt.Errorf("%w: round %d has %d matches, want %d", ErrMalformedTree, r+1, len(round), want)
		}
	}

	t.next = make([]int, len(t.Matches))
	t.feeders = make([][2]int, len(t.Matches))
	for i := range t.feeders {
		t.feeders[i] = [2]int{-1, -1}
	}

	roots := 0
	for i, m := range t.Matches {
		if m.NextMatchID == nil {
			t.next[i] = -1
			roots++
			continue
		}
		j, ok := t.index[*m.NextMatchID]
		if !ok || m.NextMatchSlot == nil || t.Matches[j].RoundNumber != m.RoundNumber+1 {
			return nil, fmt.Errorf("%w: match %s has a broken forward link", ErrMalformedTree, m.ID)
		}
		s := slotIndex(*m.NextMatchSlot)
		if t.feeders[j][s] != -1 {
			return nil, fmt.Errorf("%w: slot %s of match %s is fed twice", ErrMalformedTree, *m.NextMatchSlot, m.NextMatchID)
		}
		t.feeders[j][s] = i
		t.next[i] = j
	}
	if roots != 1 {
		return nil, fmt.Errorf("%w: %d root matches", ErrMalformedTree, roots)
	}

	return t, nil
}

func slotIndex(s Slot) int {
	if s == SlotB {
		return 1
	}
	return 0
}

func (t *Tree) Index(matchID uuid.UUID) (int, bool) {
	i, ok := t.index[matchID]
	return i, ok
}

func (t *Tree) TotalRounds() int {
	return len(t.rounds)
}

// Final returns the match of the last round.
func (t *Tree) Final() *Match {
	return &t.Matches[t.rounds[len(t.rounds)-1][0]]
}

// Snapshot copies the current match state.
func (t *Tree) Snapshot() []Match {
	return append([]Match(nil), t.Matches...)
}

// Restore rolls the arena back to a snapshot taken from this tree.
func (t *Tree) Restore(snapshot []Match) {
	copy(t.Matches, snapshot)
}

// Changed returns the matches whose state differs from snapshot.
func (t *Tree) Changed(snapshot []Match) []Match {
	var changed []Match
	for i := range t.Matches {
		if !sameState(&t.Matches[i], &snapshot[i]) {
			changed = append(changed, t.Matches[i])
		}
	}
	return changed
}

// resolve completes match i and writes the winner into its next match.
func (t *Tree) resolve(i int, winner uuid.UUID) {
	m := &t.Matches[i]
	w := winner
	m.WinnerTeamID = &w
	m.Status = MatchComplete

	if j := t.next[i]; j >= 0 {
		t.Matches[j].setTeam(*m.NextMatchSlot, &w)
	}
}

// Record stores a played result and advances the winner.
func (t *Tree) Record(i, scoreA, scoreB int) (winner, loser uuid.UUID, err error) {
	m := &t.Matches[i]
	if m.IsComplete() {
		return uuid.Nil, uuid.Nil, ErrMatchComplete
	}
	if m.TeamAID == nil || m.TeamBID == nil {
		return uuid.Nil, uuid.Nil, ErrMissingTeams
	}
	if scoreA == scoreB {
		return uuid.Nil, uuid.Nil, ErrTie
	}

	winner, loser = *m.TeamAID, *m.TeamBID
	if scoreB > scoreA {
		winner, loser = loser, winner
	}
	m.ScoreA, m.ScoreB = scoreA, scoreB
	t.resolve(i, winner)
	return winner, loser, nil
}

// canProduce reports whether match i may still send a team forward.
func (t *Tree) canProduce(i int) bool {
	m := &t.Matches[i]
	if m.IsComplete() {
		return false
	}
	if m.TeamAID != nil || m.TeamBID != nil {
		return true
	}
	return t.slotOpen(i, SlotA) || t.slotOpen(i, SlotB)
}

// slotOpen reports whether an empty slot of match i can still be filled by its feeder.
func (t *Tree) slotOpen(i int, s Slot) bool {
	f := t.feeders[i][slotIndex(s)]
	return f >= 0 && t.canProduce(f)
}

// AutoAdvance resolves one-team matches until nothing changes. A lone team only advances
// when eligible and when its empty slot can never be filled, so a bye never skips a
// match that is still to be played. It returns the arena indexes it resolved.
func (t *Tree) AutoAdvance(eligible func(uuid.UUID) bool) []int {
	var resolved []int
	for {
		changed := false
		for i := range t.Matches {
			m := &t.Matches[i]
			if m.IsComplete() {
				continue
			}
			team, empty, ok := m.loneTeam()
			if !ok || !eligible(team) || t.slotOpen(i, empty) {
				continue
			}
			t.resolve(i, team)
			resolved = append(resolved, i)
			changed = true
		}
		if !changed {
			return resolved
		}
	}
}

// StripTeams empties every slot of an unplayed match held by a team for which drop
// returns true. It returns how many slots were cleared.
func (t *Tree) StripTeams(drop func(uuid.UUID) bool) int {
	cleared := 0
	for i := range t.Matches {
		m := &t.Matches[i]
		if m.IsComplete() {
			continue
		}
		for _, s := range []Slot{SlotA, SlotB} {
			if id := m.Team(s); id != nil && drop(*id) {
				m.setTeam(s, nil)
				cleared++
			}
		}
	}
	return cleared
}

// Everyone is an eligibility filter that admits every team.
func Everyone(uuid.UUID) bool { return true }
