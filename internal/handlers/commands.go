package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openmohaa/match-server/internal/engine"
	"github.com/openmohaa/match-server/internal/models"
)

type ConnectRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"max=64"`
}

type FactionRequest struct {
	Faction models.Faction `json:"faction" validate:"required,oneof=attackers defenders spectators"`
}

type SelectorRequest struct {
	Selector string `json:"selector" validate:"required,max=64"`
}

type PauseRequest struct {
	Pause bool `json:"pause"`
}

type RosterRequest struct {
	ID string `json:"id" validate:"required"`
}

type StatDeltaRequest struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

type SnapshotRequest struct {
	Stats map[string]any `json:"stats" validate:"required"`
}

type HitRequest struct {
	Attacker string  `json:"attacker" validate:"required"`
	Victim   string  `json:"victim" validate:"required"`
	Weapon   string  `json:"weapon" validate:"required,max=64"`
	Damage   float64 `json:"damage" validate:"gt=0"`
}

type KillRequest struct {
	Killer   string       `json:"killer"`
	Victim   string       `json:"victim" validate:"required"`
	Position *models.Vec3 `json:"position,omitempty"`
}

// Connect admits a participant
// @Summary Connect a participant
// @Tags Participants
// @Accept json
// @Produce json
// @Param body body ConnectRequest true "Participant"
// @Success 201 {object} models.Participant
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /participants [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	p, err := h.engine.Connect(r.Context(), req.ID, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, p)
}

// Disconnect removes a participant
// @Summary Disconnect a participant
// @Tags Participants
// @Param id path string true "Participant ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /participants/{id} [delete]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Disconnect(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChooseFaction sets a participant's faction
// @Summary Choose a faction
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param body body FactionRequest true "Faction"
// @Success 200 {object} models.Participant
// @Router /participants/{id}/faction [put]
func (h *Handler) ChooseFaction(w http.ResponseWriter, r *http.Request) {
	var req FactionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	p, err := h.engine.ChooseFaction(r.Context(), chi.URLParam(r, "id"), req.Faction)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, p)
}

// CreateSession prepares a round
// @Summary Create a round on a map
// @Tags Session
// @Accept json
// @Produce json
// @Param body body SelectorRequest true "Map selector"
// @Success 201 {object} models.RoundSnapshot
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /session [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SelectorRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	snap, err := h.engine.CreateSession(r.Context(), actor(r), req.Selector)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, snap)
}

// StartSession starts the prepared round
// @Summary Start the prepared round
// @Tags Session
// @Produce json
// @Success 200 {object} models.RoundSnapshot
// @Failure 409 {object} ErrorResponse
// @Router /session/start [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.StartSession(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, snap)
}

// PauseSession pauses or resumes the round clock
// @Summary Pause or resume
// @Tags Session
// @Accept json
// @Produce json
// @Param body body PauseRequest true "Pause flag"
// @Success 200 {object} models.RoundSnapshot
// @Failure 409 {object} ErrorResponse
// @Router /session/pause [post]
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	snap, err := h.engine.PauseSession(r.Context(), actor(r), req.Pause)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, snap)
}

// EndSession ends the round
// @Summary End the round
// @Description Ends a running round and returns its archive; a round still preparing is discarded (204)
// @Tags Session
// @Produce json
// @Success 200 {object} models.RoundArchive
// @Success 204
// @Failure 409 {object} ErrorResponse
// @Router /session/end [post]
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	archive, err := h.engine.EndSession(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if archive == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.jsonResponse(w, http.StatusOK, archive)
}

// AddParticipant joins a connected participant to the running round
// @Summary Add to roster
// @Tags Session
// @Accept json
// @Produce json
// @Param body body RosterRequest true "Participant"
// @Success 200 {object} models.PlayerRoundStat
// @Router /session/roster [post]
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req RosterRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	s, err := h.engine.AddParticipant(r.Context(), actor(r), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, s)
}

// RemoveParticipant drops a participant from the round
// @Summary Remove from roster
// @Tags Session
// @Param id path string true "Participant ID"
// @Success 204
// @Router /session/roster/{id} [delete]
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveParticipant(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SwapFaction moves a rostered participant to the other faction
// @Summary Swap faction
// @Tags Session
// @Accept json
// @Param id path string true "Participant ID"
// @Param body body FactionRequest true "Faction"
// @Success 204
// @Router /session/roster/{id}/faction [put]
func (h *Handler) SwapFaction(w http.ResponseWriter, r *http.Request) {
	var req FactionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.SwapFaction(r.Context(), actor(r), chi.URLParam(r, "id"), req.Faction); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyStatDelta merges one stat delta
// @Summary Apply a stat delta
// @Description A value of the wrong shape is ignored and reported with applied=false
// @Tags Session
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param body body StatDeltaRequest true "Delta"
// @Success 200 {object} map[string]bool
// @Router /session/players/{id}/stats [post]
func (h *Handler) ApplyStatDelta(w http.ResponseWriter, r *http.Request) {
	var req StatDeltaRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	applied, err := h.engine.ApplyStatDelta(r.Context(), actor(r), chi.URLParam(r, "id"), req.Field, req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]bool{"applied": applied})
}

// MergeSnapshot folds a compact public snapshot into the round record
// @Summary Merge a stat snapshot
// @Tags Session
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param body body SnapshotRequest true "Snapshot"
// @Success 200 {object} map[string][]string
// @Router /session/players/{id}/snapshot [post]
func (h *Handler) MergeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	fields, err := h.engine.MergeSnapshot(r.Context(), actor(r), chi.URLParam(r, "id"), req.Stats)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string][]string{"applied": fields})
}

// RecordHit books damage between two participants
// @Summary Record a hit
// @Tags Session
// @Accept json
// @Param body body HitRequest true "Hit"
// @Success 204
// @Router /session/hits [post]
func (h *Handler) RecordHit(w http.ResponseWriter, r *http.Request) {
	var req HitRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.RecordHit(r.Context(), actor(r), req.Attacker, req.Victim, req.Weapon, req.Damage); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordKill books a death and any assists
// @Summary Record a kill
// @Tags Session
// @Accept json
// @Produce json
// @Param body body KillRequest true "Kill"
// @Success 200 {object} map[string][]string
// @Router /session/kills [post]
func (h *Handler) RecordKill(w http.ResponseWriter, r *http.Request) {
	var req KillRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	assists, err := h.engine.RecordKill(r.Context(), actor(r), req.Killer, req.Victim, req.Position)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if assists == nil {
		assists = []string{}
	}
	h.jsonResponse(w, http.StatusOK, map[string][]string{"assists": assists})
}

// NominateOrVote votes for a map
// @Summary Nominate or vote for a map
// @Tags Vote
// @Accept json
// @Produce json
// @Param body body SelectorRequest true "Map selector"
// @Success 200 {object} models.Nomination
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /vote [post]
func (h *Handler) NominateOrVote(w http.ResponseWriter, r *http.Request) {
	var req SelectorRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	n, err := h.engine.NominateOrVote(r.Context(), actor(r), req.Selector)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, n)
}

// ResolveVote resolves the vote now
// @Summary Resolve the vote
// @Tags Vote
// @Produce json
// @Success 200 {object} engine.VoteResolution
// @Router /vote/resolve [post]
func (h *Handler) ResolveVote(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ResolveVote(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, res)
}

// CancelVote discards every nomination
// @Summary Cancel the vote
// @Tags Vote
// @Success 204
// @Router /vote [delete]
func (h *Handler) CancelVote(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CancelVote(r.Context(), actor(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchCommand runs any registered command by name
// @Summary Run a named command
// @Description The body's actor falls back to the X-Actor-ID header
// @Tags Commands
// @Accept json
// @Produce json
// @Param name path string true "Command name"
// @Param body body engine.Command true "Command"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /commands/{name} [post]
func (h *Handler) DispatchCommand(w http.ResponseWriter, r *http.Request) {
	var cmd engine.Command
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if cmd.Actor == "" {
		cmd.Actor = actor(r)
	}
	out, err := h.engine.Dispatch(r.Context(), chi.URLParam(r, "name"), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"result": out})
}
