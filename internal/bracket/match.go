package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchScheduled MatchStatus = "SCHEDULED"
	MatchComplete  MatchStatus = "COMPLETE"
)

// Slot names which side of the next match a winner fills: "1" is team A, "2" is team B.
type Slot string

const (
	SlotA Slot = "1"
	SlotB Slot = "2"
)

type Match struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	TournamentID  uuid.UUID   `db:"tournament_id" json:"tournament_id"`
	RoundNumber   int         `db:"round_number" json:"round_number"`
	MatchNumber   int         `db:"match_number" json:"match_number"`
	TeamAID       *uuid.UUID  `db:"team_a_id" json:"team_a_id"`
	TeamBID       *uuid.UUID  `db:"team_b_id" json:"team_b_id"`
	ScoreA        int         `db:"score_a" json:"score_a"`
	ScoreB        int         `db:"score_b" json:"score_b"`
	WinnerTeamID  *uuid.UUID  `db:"winner_team_id" json:"winner_team_id"`
	Status        MatchStatus `db:"status" json:"status"`
	NextMatchID   *uuid.UUID  `db:"next_match_id" json:"next_match_id"`
	NextMatchSlot *Slot       `db:"next_match_slot" json:"next_match_slot"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

func (m *Match) IsFinal() bool {
	return m.NextMatchID == nil
}

func (m *Match) IsComplete() bool {
	return m.Status == MatchComplete
}

func (m *Match) HasTeam(teamID uuid.UUID) bool {
	return (m.TeamAID != nil && *m.TeamAID == teamID) || (m.TeamBID != nil && *m.TeamBID == teamID)
}

// Team returns the team occupying the given slot.
func (m *Match) Team(slot Slot) *uuid.UUID {
	if slot == SlotA {
		return m.TeamAID
	}
	return m.TeamBID
}

func (m *Match) setTeam(slot Slot, teamID *uuid.UUID) {
	if slot == SlotA {
		m.TeamAID = teamID
	} else {
		m.TeamBID = teamID
	}
}

// loneTeam returns the only occupied slot's team and the empty slot, if exactly one is set.
func (m *Match) loneTeam() (uuid.UUID, Slot, bool) {
	switch {
	case m.TeamAID != nil && m.TeamBID == nil:
		return *m.TeamAID, SlotB, true
	case m.TeamAID == nil && m.TeamBID != nil:
		return *m.TeamBID, SlotA, true
	}
	return uuid.Nil, "", false
}

func sameTeam(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// sameState compares the mutable part of two matches.
func sameState(a, b *Match) bool {
	return sameTeam(a.TeamAID, b.TeamAID) &&
		sameTeam(a.TeamBID, b.TeamBID) &&
		sameTeam(a.WinnerTeamID, b.WinnerTeamID) &&
		a.ScoreA == b.ScoreA &&
		a.ScoreB == b.ScoreB &&
		a.Status == b.Status
}
