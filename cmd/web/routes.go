package main

import (
	"net/http"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/activity"
	"github.com/AdamBeresnev/league-brackets/internal/live"
	"github.com/AdamBeresnev/league-brackets/internal/metrics"
	"github.com/AdamBeresnev/league-brackets/internal/middleware"
	"github.com/AdamBeresnev/league-brackets/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
)

type application struct {
	deps          *service.Deps
	tournaments   *service.TournamentService
	registrations *service.RegistrationService
	brackets      *service.BracketService
	matches       *service.MatchService
	attendance    *service.AttendanceService
	finalizer     *service.FinalizeService
	users         *service.UserService
	feed          *activity.Store
	hub           *live.Hub
	metrics       http.Handler
}

func newApplication(database *sqlx.DB, m metrics.Metrics, metricsHandler http.Handler, hub *live.Hub) *application {
	deps := service.NewDeps(database, m, hub)
	return &application{
		deps:          deps,
		tournaments:   service.NewTournamentService(deps),
		registrations: service.NewRegistrationService(deps),
		brackets:      service.NewBracketService(deps),
		matches:       service.NewMatchService(deps),
		attendance:    service.NewAttendanceService(deps),
		finalizer:     service.NewFinalizeService(deps),
		users:         deps.Users.(*service.UserService),
		feed:          activity.NewStore(database),
		hub:           hub,
		metrics:       metricsHandler,
	}
}

func newRouter(app *application, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequesterHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.LoadRequester)

	r.Get("/healthz", app.health)
	r.Handle("/metrics", app.metrics)

	// The websocket handshake must not be cut off by the request timeout.
	r.Get("/tournaments/{id}/bracket/live", app.liveBracket)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(15 * time.Second))

		r.Get("/activities", app.listActivities)
		r.Get("/users/{userId}/stats", app.userStats)
		r.Get("/teams/{teamId}/tournaments", app.teamTournaments)

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", app.listTournaments)
			r.With(middleware.RequireRequester).Post("/", app.createTournament)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.getTournament)
				r.Get("/registrations", app.listRegistrations)
				r.Get("/registrations/expanded", app.expandedRegistrations)
				r.Get("/eligibility", app.eligibility)
				r.Get("/bracket", app.getBracket)
				r.Get("/attendance", app.listAttendance)

				// Registration may carry the requester in its body instead.
				r.Post("/registrations", app.register)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRequester)

					r.Post("/open", app.openTournament)
					r.Delete("/registrations/by-team/{teamId}", app.unregister)
					r.Post("/bracket/regenerate", app.regenerateBracket)
					r.Patch("/matches/{matchId}/score", app.reportScore)
					r.Patch("/attendance/{teamId}", app.setCheckIn)
					r.Post("/attendance/enforce", app.enforceAttendance)
					r.Post("/finalize", app.finalize)
				})
			})
		})
	})

	return r
}
