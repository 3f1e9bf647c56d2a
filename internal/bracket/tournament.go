package bracket

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentDraft       TournamentStatus = "DRAFT"
	TournamentSignupsOpen TournamentStatus = "SIGNUPS_OPEN"
	TournamentLocked      TournamentStatus = "LOCKED"
	TournamentFull        TournamentStatus = "FULL"
	TournamentComplete    TournamentStatus = "COMPLETE"
)

const (
	// BracketWindow is how long before start the bracket becomes available and signups lock.
	BracketWindow = 24 * time.Hour
	// SignupLockout closes self-service registration this long before start.
	SignupLockout = 12 * time.Hour
	// UnregisterLockout blocks captains from withdrawing this long before start.
	UnregisterLockout = 24 * time.Hour
	// CheckInCutoff is when a tournament without a quorum of present teams may be cancelled.
	CheckInCutoff = 30 * time.Minute
)

type Tournament struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	Name           string           `db:"name" json:"name"`
	FormatSize     int              `db:"format_size" json:"format_size"`
	MaxTeams       int              `db:"max_teams" json:"max_teams"`
	SignupDeadline time.Time        `db:"signup_deadline" json:"signup_deadline"`
	StartsAt       time.Time        `db:"starts_at" json:"starts_at"`
	EndsAt         *time.Time       `db:"ends_at" json:"ends_at"`
	Location       string           `db:"location" json:"location"`
	PrizeCents     int64            `db:"prize_cents" json:"prize_cents"`
	Status         TournamentStatus `db:"status" json:"status"`
	CreatedBy      uuid.UUID        `db:"created_by" json:"created_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// IsPowerOfTwo reports whether n is a usable bracket size.
func IsPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

// TimeLocked reports whether the signup window has closed for good.
func (t *Tournament) TimeLocked(now time.Time) bool {
	return !now.Before(t.SignupDeadline) || !now.Before(t.StartsAt.Add(-BracketWindow))
}

// SignupsOpen is the self-service registration window: status allows it, the deadline
// has not passed and we are outside the pre-start lockout.
func (t *Tournament) SignupsOpen(now time.Time) bool {
	switch t.Status {
	case TournamentDraft, TournamentLocked, TournamentComplete:
		return false
	}
	return now.Before(t.SignupDeadline) && now.Before(t.StartsAt.Add(-SignupLockout))
}

func (t *Tournament) InUnregisterLockout(now time.Time) bool {
	return !now.Before(t.StartsAt.Add(-UnregisterLockout))
}

func (t *Tournament) BracketWindowOpen(now time.Time) bool {
	return !now.Before(t.StartsAt.Add(-BracketWindow))
}

func (t *Tournament) CheckInClosed(now time.Time) bool {
	return !now.Before(t.StartsAt.Add(-CheckInCutoff))
}

// RecomputeStatus derives the cached status from time and the active registration count.
// COMPLETE and DRAFT are never left by a recompute; the time lock only moves forward.
func RecomputeStatus(t Tournament, registered int, now time.Time) TournamentStatus {
	switch t.Status {
	case TournamentComplete, TournamentDraft:
		return t.Status
	}
	if registered >= t.MaxTeams {
		return TournamentFull
	}
	if t.Status == TournamentLocked || t.TimeLocked(now) {
		return TournamentLocked
	}
	return TournamentSignupsOpen
}
