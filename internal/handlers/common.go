package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openmohaa/match-server/internal/engine"
	"github.com/openmohaa/match-server/internal/identity"
	"github.com/openmohaa/match-server/internal/profile"
	"github.com/openmohaa/match-server/internal/round"
	"github.com/openmohaa/match-server/internal/stats"
	"github.com/openmohaa/match-server/internal/vote"
)

// ActorHeader carries the id of the participant issuing a command.
const ActorHeader = "X-Actor-ID"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Candidates []int  `json:"candidates,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{engine.ErrNotConnected, http.StatusNotFound, "not_connected"},
	{engine.ErrMapNotFound, http.StatusNotFound, "map_not_found"},
	{vote.ErrNotFound, http.StatusNotFound, "map_not_found"},
	{engine.ErrUnknownCommand, http.StatusNotFound, "unknown_command"},
	{stats.ErrNotInRoster, http.StatusNotFound, "not_in_roster"},
	{profile.ErrNotFound, http.StatusNotFound, "profile_not_found"},
	{round.ErrNoRound, http.StatusNotFound, "no_round"},

	{engine.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{identity.ErrInvalidIdentity, http.StatusBadRequest, "invalid_identity"},
	{round.ErrInvalidFaction, http.StatusBadRequest, "invalid_faction"},
	{vote.ErrAmbiguous, http.StatusBadRequest, "ambiguous_selector"},

	{engine.ErrAlreadyConnected, http.StatusConflict, "already_connected"},
	{round.ErrAlreadyRunning, http.StatusConflict, "already_running"},
	{round.ErrNotRunning, http.StatusConflict, "not_running"},
	{round.ErrAlreadyPaused, http.StatusConflict, "already_paused"},
	{round.ErrNotPaused, http.StatusConflict, "not_paused"},
	{vote.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{vote.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{vote.ErrMaxNominated, http.StatusConflict, "max_nominated"},

	{engine.ErrStopped, http.StatusServiceUnavailable, "stopped"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, code, message string) {
	h.jsonResponse(w, status, ErrorResponse{Error: message, Code: code})
}

// writeError maps a domain error to a status code. Anything unmapped is an
// internal error and its text is not exposed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		body := ErrorResponse{Error: err.Error(), Code: m.code}
		var amb *vote.AmbiguousError
		if errors.As(err, &amb) {
			for _, c := range amb.Candidates {
				body.Candidates = append(body.Candidates, c.ID)
			}
		}
		h.jsonResponse(w, m.status, body)
		return
	}
	h.logger.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	h.errorResponse(w, http.StatusInternalServerError, "internal", "Internal server error")
}

// actor returns the id of the participant issuing the request.
func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// sinceParam reads ?days=N (default 7, capped at 365) as a window start.
func sinceParam(r *http.Request, now time.Time) time.Time {
	days := 7
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 {
		days = v
	}
	if days > 365 {
		days = 365
	}
	return now.AddDate(0, 0, -days)
}

// limitParam reads ?limit=N with a default and an upper bound.
func limitParam(r *http.Request, def, ceiling int) int {
	limit := def
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}
