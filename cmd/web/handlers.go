package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AdamBeresnev/league-brackets/internal/httputil"
	"github.com/AdamBeresnev/league-brackets/internal/middleware"
	"github.com/AdamBeresnev/league-brackets/internal/service"
	"github.com/AdamBeresnev/league-brackets/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// writeServiceError maps the service error kinds onto status codes.
func writeServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httputil.NotFound(w, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrConflict):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		httputil.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		httputil.BadRequest(w, err.Error(), nil)
	default:
		httputil.InternalServerError(w, msg, err)
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func uuidQuery(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := utils.StringOrNil(r.URL.Query().Get(name))
	if raw == nil {
		httputil.BadRequest(w, name+" is required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func requester(r *http.Request) uuid.UUID {
	id, _ := middleware.GetUserIDFromContext(r.Context())
	return id
}

func (app *application) health(w http.ResponseWriter, r *http.Request) {
	if err := app.deps.DB.PingContext(r.Context()); err != nil {
		httputil.Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *application) createTournament(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTournamentInput
	if err := httputil.ReadJSON(r, &in); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}
	t, err := app.tournaments.Create(r.Context(), in, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to create tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (app *application) listTournaments(w http.ResponseWriter, r *http.Request) {
	scope, err := service.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeServiceError(w, "Invalid scope", err)
		return
	}
	list, err := app.tournaments.List(r.Context(), scope)
	if err != nil {
		writeServiceError(w, "Failed to list tournaments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (app *application) getTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	t, err := app.tournaments.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (app *application) openTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	t, err := app.tournaments.Open(r.Context(), id, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to open tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (app *application) teamTournaments(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamId")
	if !ok {
		return
	}
	past, _ := strconv.ParseBool(r.URL.Query().Get("past"))
	list, err := app.tournaments.ListForTeam(r.Context(), teamID, past)
	if err != nil {
		writeServiceError(w, "Failed to list team tournaments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type registerRequest struct {
	TeamID             uuid.UUID  `json:"team_id"`
	RequestingUserID   *uuid.UUID `json:"requesting_user_id"`
	AgreementsAccepted *bool      `json:"agreements_accepted"`
}

func (app *application) register(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req registerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}
	if req.TeamID == uuid.Nil {
		httputil.BadRequest(w, "team_id is required", nil)
		return
	}

	userID := utils.Deref(req.RequestingUserID, requester(r))
	if userID == uuid.Nil {
		httputil.BadRequest(w, "requesting_user_id is required", nil)
		return
	}

	reg, err := app.registrations.Register(r.Context(), id, req.TeamID, userID, utils.Deref(req.AgreementsAccepted, false))
	if err != nil {
		writeServiceError(w, "Failed to register team", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

func (app *application) unregister(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	teamID, ok := uuidParam(w, r, "teamId")
	if !ok {
		return
	}
	if err := app.registrations.Unregister(r.Context(), id, teamID, requester(r)); err != nil {
		writeServiceError(w, "Failed to unregister team", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) listRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	regs, err := app.registrations.List(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to list registrations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, regs)
}

func (app *application) expandedRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	rows, err := app.registrations.Expanded(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to list registrations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (app *application) eligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	userID, ok := uuidQuery(w, r, "user_id")
	if !ok {
		return
	}
	e, err := app.registrations.Eligibility(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, "Failed to get eligibility", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (app *application) getBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	view, err := app.brackets.GetBracket(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get bracket", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (app *application) regenerateBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	matches, err := app.brackets.Regenerate(r.Context(), id, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to regenerate bracket", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, matches)
}

func (app *application) liveBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := app.tournaments.Get(r.Context(), id); err != nil {
		writeServiceError(w, "Failed to get tournament", err)
		return
	}
	app.hub.Serve(w, r, id.String())
}

type scoreRequest struct {
	Team1Score *int `json:"team1_score"`
	Team2Score *int `json:"team2_score"`
}

func (app *application) reportScore(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	matchID, ok := uuidParam(w, r, "matchId")
	if !ok {
		return
	}
	var req scoreRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}
	if req.Team1Score == nil || req.Team2Score == nil {
		httputil.BadRequest(w, "team1_score and team2_score are required", nil)
		return
	}

	res, err := app.matches.ReportScore(r.Context(), id, matchID, *req.Team1Score, *req.Team2Score, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to report score", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (app *application) listAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	rows, err := app.attendance.List(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to list attendance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

type checkInRequest struct {
	CheckedIn *bool `json:"checked_in"`
}

func (app *application) setCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	teamID, ok := uuidParam(w, r, "teamId")
	if !ok {
		return
	}
	var req checkInRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}
	if req.CheckedIn == nil {
		httputil.BadRequest(w, "checked_in is required", nil)
		return
	}

	res, err := app.attendance.SetCheckIn(r.Context(), id, teamID, *req.CheckedIn, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to set check-in", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (app *application) enforceAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	res, err := app.attendance.Enforce(r.Context(), id, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to enforce attendance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (app *application) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	t, err := app.finalizer.Finalize(r.Context(), id, requester(r))
	if err != nil {
		writeServiceError(w, "Failed to finalize tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (app *application) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("team_id") != "":
		teamID, ok := uuidQuery(w, r, "team_id")
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		events, err := app.feed.ListForTeam(r.Context(), teamID, limit)
		if err != nil {
			httputil.InternalServerError(w, "Failed to list activities", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, events)
	case q.Get("tournament_id") != "":
		tournamentID, ok := uuidQuery(w, r, "tournament_id")
		if !ok {
			return
		}
		events, err := app.feed.ListForTournament(r.Context(), tournamentID)
		if err != nil {
			httputil.InternalServerError(w, "Failed to list activities", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, events)
	default:
		httputil.BadRequest(w, "team_id or tournament_id is required", nil)
	}
}

func (app *application) userStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userId")
	if !ok {
		return
	}
	stats, err := app.users.Stats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "Failed to get stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
