package activity

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

type EventType string

const (
	TeamRegisteredTournament   EventType = "TEAM_REGISTERED_TOURNAMENT"
	MatchResultWin             EventType = "MATCH_RESULT_WIN"
	MatchResultLoss            EventType = "MATCH_RESULT_LOSS"
	TournamentCompleted        EventType = "TOURNAMENT_COMPLETED"
	TournamentWinner           EventType = "TOURNAMENT_WINNER"
	TournamentCancelled        EventType = "TOURNAMENT_CANCELLED"
	TournamentBracketAvailable EventType = "TOURNAMENT_BRACKET_AVAILABLE"
	TournamentStartsSoon       EventType = "TOURNAMENT_STARTS_SOON"
)

// Event is one feed record. DedupeKey identifies the logical event; a key is stored once.
type Event struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Type          EventType  `db:"event_type" json:"event_type"`
	SubjectTeamID uuid.UUID  `db:"subject_team_id" json:"subject_team_id"`
	ActorUserID   *uuid.UUID `db:"actor_user_id" json:"actor_user_id,omitempty"`
	TeamName      *string    `db:"team_name" json:"team_name,omitempty"`
	TournamentID  *uuid.UUID `db:"tournament_id" json:"tournament_id,omitempty"`
	DedupeKey     string     `db:"dedupe_key" json:"dedupe_key"`
	Extras        Extras     `db:"extras" json:"extras,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Key joins the parts of a dedupe key, e.g. Key(MatchResultWin, matchID, teamID).
func Key(parts ...any) string {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// Extras is free-form event payload, stored as msgpack.
type Extras map[string]any

func (e Extras) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	return msgpack.Marshal(map[string]any(e))
}

func (e *Extras) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("activity: cannot scan %T into Extras", src)
	}

	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("activity: decode extras: %w", err)
	}
	*e = m
	return nil
}
