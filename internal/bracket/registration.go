package bracket

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "REGISTERED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

type Registration struct {
	ID                 uuid.UUID          `db:"id" json:"id"`
	TournamentID       uuid.UUID          `db:"tournament_id" json:"tournament_id"`
	TeamID             uuid.UUID          `db:"team_id" json:"team_id"`
	Status             RegistrationStatus `db:"status" json:"status"`
	CheckedIn          bool               `db:"checked_in" json:"checked_in"`
	AgreementsAccepted bool               `db:"agreements_accepted" json:"agreements_accepted"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

func (r *Registration) IsActive() bool {
	return r.Status == RegistrationActive
}

// ExpandedRegistration is an active registration joined with its team, numbered by signup order.
type ExpandedRegistration struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TeamID    uuid.UUID `db:"team_id" json:"team_id"`
	TeamName  string    `db:"team_name" json:"team_name"`
	CheckedIn bool      `db:"checked_in" json:"checked_in"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Seed      int       `db:"-" json:"seed"`
	Members   []string  `db:"-" json:"members"`
}

const SportBasketball = "basketball"

type UserStats struct {
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Sport       string    `db:"sport" json:"sport"`
	MatchWins   int       `db:"match_wins" json:"match_wins"`
	MatchLosses int       `db:"match_losses" json:"match_losses"`
	Titles      int       `db:"titles" json:"titles"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}
