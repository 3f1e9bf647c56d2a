package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/bracket"
	"github.com/AdamBeresnev/league-brackets/internal/db"
	"github.com/AdamBeresnev/league-brackets/internal/live"
	"github.com/AdamBeresnev/league-brackets/internal/metrics"
	"github.com/AdamBeresnev/league-brackets/internal/store"
	users "github.com/AdamBeresnev/league-brackets/internal/user"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a file backed SQLite database and applies migrations. Services read
// collaborators through the pool while a transaction is open, so :memory: won't do.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", db.DSN(filepath.Join(t.TempDir(), "league.db")))
	require.NoError(t, err, "Failed to connect to test DB")
	t.Cleanup(func() { database.Close() })

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

type recordingHub struct {
	mu   sync.Mutex
	msgs map[string][]live.Message
}

func (h *recordingHub) BroadcastToRoom(room string, msg live.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.msgs == nil {
		h.msgs = make(map[string][]live.Message)
	}
	h.msgs[room] = append(h.msgs[room], msg)
}

func (h *recordingHub) count(room uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs[room.String()])
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *sqlx.DB
	deps    *Deps
	metrics *metrics.Mock
	hub     *recordingHub
	feed    *activity.Store
	users   *store.UserStore
	teams   *store.TeamStore

	mu  sync.Mutex
	now time.Time

	admin uuid.UUID

	registrations *RegistrationService
	brackets      *BracketService
	matches       *MatchService
	attendance    *AttendanceService
	finalizer     *FinalizeService
	tournaments   *TournamentService
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := setupTestDB(t)
	m := metrics.NewMock()
	hub := &recordingHub{}

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      database,
		metrics: m,
		hub:     hub,
		feed:    activity.NewStore(database),
		users:   store.NewUserStore(database),
		teams:   store.NewTeamStore(database),
		now:     testNow,
	}
	f.deps = NewDeps(database, m, hub)
	f.deps.Now = f.clock

	f.registrations = NewRegistrationService(f.deps)
	f.brackets = NewBracketService(f.deps)
	// Seed in registration order so tests know the pairings.
	f.brackets.shuffle = func([]uuid.UUID) {}
	f.matches = NewMatchService(f.deps)
	f.attendance = NewAttendanceService(f.deps)
	f.finalizer = NewFinalizeService(f.deps)
	f.tournaments = NewTournamentService(f.deps)

	f.admin = f.user("admin", users.RoleAdmin)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// setClock moves the clock to the given offset from a tournament's start.
func (f *fixture) setClock(t *bracket.Tournament, beforeStart time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.StartsAt.Add(-beforeStart)
}

func (f *fixture) user(name string, role users.Role) uuid.UUID {
	f.t.Helper()
	u := &users.User{ID: uuid.New(), Username: name, Role: role}
	require.NoError(f.t, f.users.CreateUser(f.ctx, u))
	return u.ID
}

type testTeam struct {
	ID      uuid.UUID
	Name    string
	Captain uuid.UUID
	Members []uuid.UUID
}

// team creates a team with a captain and extra players.
func (f *fixture) team(name string, extra int) testTeam {
	f.t.Helper()
	captain := f.user(name+"-captain", users.RoleUser)
	tm := &users.Team{ID: uuid.New(), Name: name, CaptainID: captain}
	require.NoError(f.t, f.teams.CreateTeam(f.ctx, tm))

	members := []uuid.UUID{captain}
	for i := 0; i < extra; i++ {
		id := f.user(fmt.Sprintf("%s-player-%d", name, i+1), users.RoleUser)
		require.NoError(f.t, f.teams.AddMember(f.ctx, tm.ID, id))
		members = append(members, id)
	}
	return testTeam{ID: tm.ID, Name: name, Captain: captain, Members: members}
}

func (f *fixture) tournament(maxTeams int, startsIn time.Duration) *bracket.Tournament {
	f.t.Helper()
	now := f.clock()
	startsAt := now.Add(startsIn)
	tm := &bracket.Tournament{
		ID:             uuid.New(),
		Name:           fmt.Sprintf("Cup of %d", maxTeams),
		FormatSize:     3,
		MaxTeams:       maxTeams,
		SignupDeadline: startsAt.Add(-bracket.BracketWindow),
		StartsAt:       startsAt,
		Location:       "Central Park",
		Status:         bracket.TournamentSignupsOpen,
		CreatedBy:      f.admin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(f.t, f.deps.Stores.Tournaments.CreateTournament(f.ctx, f.db, tm))
	return tm
}

// register signs teams up one second apart so seeding follows argument order.
func (f *fixture) register(tournamentID uuid.UUID, teams ...testTeam) {
	f.t.Helper()
	for _, tm := range teams {
		_, err := f.registrations.Register(f.ctx, tournamentID, tm.ID, tm.Captain, true)
		require.NoError(f.t, err)
		f.advance(time.Second)
	}
}

func (f *fixture) checkIn(tournamentID uuid.UUID, teams ...testTeam) {
	f.t.Helper()
	for _, tm := range teams {
		require.NoError(f.t, f.deps.Stores.Registrations.SetCheckedIn(f.ctx, f.db, tournamentID, tm.ID, true, f.clock()))
	}
}

// teams creates n teams with two players each.
func (f *fixture) teamsOf(n int) []testTeam {
	out := make([]testTeam, n)
	for i := range out {
		out[i] = f.team(fmt.Sprintf("team-%d-%s", i+1, uuid.NewString()[:8]), 1)
	}
	return out
}

// started returns a tournament with the given teams registered and the clock inside the
// bracket window.
func (f *fixture) started(maxTeams int, teams ...testTeam) *bracket.Tournament {
	f.t.Helper()
	tm := f.tournament(maxTeams, 72*time.Hour)
	f.register(tm.ID, teams...)
	f.setClock(tm, time.Hour)
	return tm
}

func (f *fixture) bracket(tournamentID uuid.UUID) []bracket.Match {
	f.t.Helper()
	matches, err := f.deps.Stores.Matches.GetMatches(f.ctx, f.db, tournamentID)
	require.NoError(f.t, err)
	return matches
}

func (f *fixture) match(matches []bracket.Match, round, number int) bracket.Match {
	f.t.Helper()
	for _, m := range matches {
		if m.RoundNumber == round && m.MatchNumber == number {
			return m
		}
	}
	f.t.Fatalf("no match %d in round %d", number, round)
	return bracket.Match{}
}

func (f *fixture) getTournament(id uuid.UUID) *bracket.Tournament {
	f.t.Helper()
	tm, err := f.deps.Stores.Tournaments.GetTournament(f.ctx, f.db, id)
	require.NoError(f.t, err)
	return tm
}

func (f *fixture) keyCount(parts ...any) int {
	f.t.Helper()
	n, err := f.feed.CountByKey(f.ctx, activity.Key(parts...))
	require.NoError(f.t, err)
	return n
}

func (f *fixture) stats(userID uuid.UUID) bracket.UserStats {
	f.t.Helper()
	s, err := f.deps.Users.(*UserService).Stats(f.ctx, userID)
	require.NoError(f.t, err)
	return *s
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}
