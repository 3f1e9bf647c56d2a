package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/AdamBeresnev/league-brackets/internal/live"
	"github.com/AdamBeresnev/league-brackets/internal/metrics"
	"github.com/AdamBeresnev/league-brackets/internal/store"
	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// Roster answers team questions for the bracket engine.
type Roster interface {
	IsCaptain(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
	MembersOf(ctx context.Context, teamID uuid.UUID) ([]uuid.UUID, error)
	TeamName(ctx context.Context, teamID uuid.UUID) (string, error)
}

// Directory answers account questions.
type Directory interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*users.User, error)
	Username(ctx context.Context, userID uuid.UUID) (string, error)
}

// Feed persists activity events at most once per dedupe key.
type Feed interface {
	Emit(ctx context.Context, ev activity.Event) (bool, error)
}

// Broadcaster pushes live bracket updates to subscribers.
type Broadcaster interface {
	BroadcastToRoom(room string, msg live.Message)
}

type Stores struct {
	Tournaments   *store.TournamentStore
	Registrations *store.RegistrationStore
	Matches       *store.MatchStore
	Stats         *store.StatsStore
}

func NewStores(db *sqlx.DB) *Stores {
	return &Stores{
		Tournaments:   store.NewTournamentStore(db),
		Registrations: store.NewRegistrationStore(db),
		Matches:       store.NewMatchStore(db),
		Stats:         store.NewStatsStore(db),
	}
}

// Deps is shared by every bracket service.
type Deps struct {
	DB      *sqlx.DB
	Stores  *Stores
	Roster  Roster
	Users   Directory
	Feed    Feed
	Live    Broadcaster
	Metrics metrics.Metrics
	Locks   *Locker
	Now     func() time.Time
}

// NewDeps wires the sqlite-backed collaborators. Callers may replace any field before
// building services.
func NewDeps(db *sqlx.DB, m metrics.Metrics, live Broadcaster) *Deps {
	return &Deps{
		DB:      db,
		Stores:  NewStores(db),
		Roster:  store.NewTeamStore(db),
		Users:   NewUserService(db, store.NewUserStore(db)),
		Feed:    activity.NewStore(db),
		Live:    live,
		Metrics: m,
		Locks:   NewLocker(),
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// Locker hands out one mutex per tournament.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the tournament is free and returns the unlock func.
func (l *Locker) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// outbox collects side effects that only run once the transaction has committed.
type outbox struct {
	events    []activity.Event
	broadcast bool
	after     []func()
}

func (o *outbox) emit(ev activity.Event) {
	o.events = append(o.events, ev)
}

func (o *outbox) onCommit(fn func()) {
	o.after = append(o.after, fn)
}

type txFunc func(tx *sqlx.Tx, t *bracket.Tournament, out *outbox) error

// inTournament runs fn in one transaction holding both the in-process tournament lock and
// sqlite's write lock. Events and broadcasts in the outbox go out after commit.
func (d *Deps) inTournament(ctx context.Context, op string, tournamentID uuid.UUID, fn txFunc) error {
	unlock := d.Locks.Lock(tournamentID)
	defer unlock()

	start := time.Now()
	defer func() { d.Metrics.ObserveMutationDuration(op, time.Since(start).Seconds()) }()

	out := &outbox{}
	if err := d.runTx(ctx, tournamentID, out, fn); err != nil {
		return err
	}

	for _, fn := range out.after {
		fn()
	}
	d.emit(ctx, out.events)
	if out.broadcast && d.Live != nil {
		d.Live.BroadcastToRoom(tournamentID.String(), live.Message{Type: "BRACKET_UPDATED", Payload: map[string]string{"op": op}})
	}
	return nil
}

func (d *Deps) runTx(ctx context.Context, tournamentID uuid.UUID, out *outbox, fn txFunc) error {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := d.Stores.Tournaments.LockTournament(ctx, tx, tournamentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tournament not found")
		}
		return fmt.Errorf("failed to lock tournament: %w", err)
	}

	t, err := d.Stores.Tournaments.GetTournament(ctx, tx, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to get tournament: %w", err)
	}

	if err := fn(tx, t, out); err != nil {
		return err
	}
	return tx.Commit()
}

// emit writes events to the feed. The state change has already committed, so failures are
// logged and counted rather than returned.
func (d *Deps) emit(ctx context.Context, events []activity.Event) {
	for _, ev := range events {
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = d.Now()
		}
		created, err := d.Feed.Emit(ctx, ev)
		switch {
		case err != nil:
			d.Metrics.IncActivityEmitFailed()
			slog.Error("failed to emit activity", "type", ev.Type, "dedupe_key", ev.DedupeKey, "error", err)
		case created:
			d.Metrics.IncActivitiesEmitted()
		default:
			d.Metrics.IncActivitiesDeduplicated()
		}
	}
}

func (d *Deps) getTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	t, err := d.Stores.Tournaments.GetTournament(ctx, d.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tournament not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	return t, nil
}

func (d *Deps) isAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := d.Users.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	return user.IsAdmin(), nil
}

func (d *Deps) requireAdmin(ctx context.Context, userID uuid.UUID) error {
	ok, err := d.isAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("admin only")
	}
	return nil
}

// canOverride reports whether userID may bypass signup and captain gates: admins and the
// tournament's creator.
func (d *Deps) canOverride(ctx context.Context, t *bracket.Tournament, userID uuid.UUID) (bool, error) {
	if t.CreatedBy == userID {
		return true, nil
	}
	return d.isAdmin(ctx, userID)
}

func (d *Deps) teamName(ctx context.Context, teamID uuid.UUID) (string, error) {
	name, err := d.Roster.TeamName(ctx, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("team not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get team name: %w", err)
	}
	return name, nil
}

// teamNames looks names up concurrently.
func (d *Deps) teamNames(ctx context.Context, teamIDs ...uuid.UUID) (map[uuid.UUID]string, error) {
	names := make([]string, len(teamIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range teamIDs {
		i, id := i, id
		g.Go(func() error {
			name, err := d.teamName(gctx, id)
			names[i] = name
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]string, len(teamIDs))
	for i, id := range teamIDs {
		out[id] = names[i]
	}
	return out, nil
}

// membersOf returns the rosters of several teams, fetched concurrently.
func (d *Deps) membersOf(ctx context.Context, teamIDs ...uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	rosters := make([][]uuid.UUID, len(teamIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range teamIDs {
		i, id := i, id
		g.Go(func() error {
			members, err := d.Roster.MembersOf(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to get members of team %s: %w", id, err)
			}
			rosters[i] = members
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]uuid.UUID, len(teamIDs))
	for i, id := range teamIDs {
		out[id] = rosters[i]
	}
	return out, nil
}

// syncStatus recomputes and stores the tournament status from the current registrations.
func (d *Deps) syncStatus(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament, now time.Time) error {
	count, err := d.Stores.Registrations.CountRegistered(ctx, tx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to count registrations: %w", err)
	}
	status := bracket.RecomputeStatus(*t, count, now)
	if status == t.Status {
		return nil
	}
	if err := d.Stores.Tournaments.UpdateTournamentStatus(ctx, tx, t.ID, status, now); err != nil {
		return fmt.Errorf("failed to update tournament status: %w", err)
	}
	slog.Info("tournament status changed", "tournament_id", t.ID, "from", t.Status, "to", status, "registered", count)
	t.Status = status
	return nil
}

// RefreshStatus recomputes one tournament's status under its lock.
func (d *Deps) RefreshStatus(ctx context.Context, tournamentID uuid.UUID) (bracket.TournamentStatus, error) {
	var status bracket.TournamentStatus
	err := d.inTournament(ctx, "refresh_status", tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament, _ *outbox) error {
		if err := d.syncStatus(ctx, tx, t, d.Now()); err != nil {
			return err
		}
		status = t.Status
		return nil
	})
	return status, err
}
