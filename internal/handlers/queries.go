package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/notify"
)

// GetSession returns the current round
// @Summary Current round
// @Tags Session
// @Produce json
// @Success 200 {object} models.RoundSnapshot
// @Router /session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Session(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, snap)
}

// GetPlayerStat returns one participant's round counters
// @Summary Round stats for a participant
// @Tags Session
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} models.PlayerRoundStat
// @Failure 404 {object} ErrorResponse
// @Router /session/players/{id} [get]
func (h *Handler) GetPlayerStat(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.PlayerStat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, s)
}

// GetNominations returns the open ballot
// @Summary Open nominations
// @Tags Vote
// @Produce json
// @Success 200 {array} models.Nomination
// @Router /vote [get]
func (h *Handler) GetNominations(w http.ResponseWriter, r *http.Request) {
	noms, err := h.engine.Nominations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if noms == nil {
		noms = []models.Nomination{}
	}
	h.jsonResponse(w, http.StatusOK, noms)
}

// ListParticipants returns every connected participant
// @Summary Connected participants
// @Tags Participants
// @Produce json
// @Success 200 {array} models.Participant
// @Router /participants [get]
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.engine.Participants(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, ps)
}

// GetParticipant returns one connected participant
// @Summary Connected participant
// @Tags Participants
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} engine.ParticipantView
// @Failure 404 {object} ErrorResponse
// @Router /participants/{id} [get]
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Participant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, p)
}

// GetProfile returns a durable participant record
// @Summary Participant profile
// @Tags Participants
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} models.Profile
// @Failure 404 {object} ErrorResponse
// @Router /participants/{id}/profile [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, p)
}

// GetLiveRound returns the round snapshot mirrored into shared state, which
// may come from another node.
// @Summary Shared live round
// @Tags Session
// @Produce json
// @Success 200 {object} models.RoundSnapshot
// @Router /live/round [get]
func (h *Handler) GetLiveRound(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		h.errorResponse(w, http.StatusNotFound, "no_shared_state", "Shared state is not configured")
		return
	}
	var snap models.RoundSnapshot
	found, err := h.live.Get(r.Context(), notify.RoundKey, &snap)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		snap = models.RoundSnapshot{State: models.RoundNone}
	}
	h.jsonResponse(w, http.StatusOK, snap)
}

// GetRecentRounds lists archived rounds
// @Summary Recent rounds
// @Tags History
// @Produce json
// @Param days query int false "Window in days (default 7)"
// @Param limit query int false "Max rounds (default 50)"
// @Success 200 {array} models.RoundSummary
// @Router /history/rounds [get]
func (h *Handler) GetRecentRounds(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.errorResponse(w, http.StatusNotFound, "no_history", "History is not configured")
		return
	}
	rounds, err := h.history.RecentRounds(r.Context(), sinceParam(r, time.Now().UTC()), limitParam(r, 50, 500))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rounds == nil {
		rounds = []models.RoundSummary{}
	}
	h.jsonResponse(w, http.StatusOK, rounds)
}

// GetPlayerHistory aggregates a participant's archived rounds
// @Summary Participant history
// @Tags History
// @Produce json
// @Param id path string true "Participant ID"
// @Param days query int false "Window in days (default 7)"
// @Success 200 {object} models.PlayerHistory
// @Router /history/players/{id} [get]
func (h *Handler) GetPlayerHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.errorResponse(w, http.StatusNotFound, "no_history", "History is not configured")
		return
	}
	hist, err := h.history.PlayerHistory(r.Context(), chi.URLParam(r, "id"), sinceParam(r, time.Now().UTC()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, hist)
}
