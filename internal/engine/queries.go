package engine

import (
	"context"

	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/round"
)

// Session returns the current round. State is RoundNone when there is none.
func (e *Engine) Session(ctx context.Context) (models.RoundSnapshot, error) {
	return call(ctx, e, func() (models.RoundSnapshot, error) {
		return e.snapshot(), nil
	})
}

// PlayerStat returns a rostered participant's counters for the current round.
func (e *Engine) PlayerStat(ctx context.Context, id string) (models.PlayerRoundStat, error) {
	return call(ctx, e, func() (models.PlayerRoundStat, error) {
		s, err := e.machine.Locate(id)
		if err != nil {
			return models.PlayerRoundStat{}, err
		}
		return s.Clone(), nil
	})
}

// Nominations returns the open ballot in nomination order.
func (e *Engine) Nominations(ctx context.Context) ([]models.Nomination, error) {
	return call(ctx, e, func() ([]models.Nomination, error) {
		return e.ballot.Nominations(), nil
	})
}

// Participants lists every connected participant.
func (e *Engine) Participants(ctx context.Context) ([]models.Participant, error) {
	return call(ctx, e, func() ([]models.Participant, error) {
		return e.directory.All(), nil
	})
}

// ParticipantView is a participant with their position.
type ParticipantView struct {
	models.Participant
	Position models.Vec3 `json:"position"`
}

// Participant returns one connected participant.
func (e *Engine) Participant(ctx context.Context, id string) (ParticipantView, error) {
	return call(ctx, e, func() (ParticipantView, error) {
		p, ok := e.directory.Get(id)
		if !ok {
			return ParticipantView{}, ErrNotConnected
		}
		pos, _ := e.directory.Position(id)
		return ParticipantView{Participant: p, Position: pos}, nil
	})
}

// Profile returns a participant's durable record, from memory when they are
// connected and from the store otherwise.
func (e *Engine) Profile(ctx context.Context, id string) (models.Profile, error) {
	rec, err := call(ctx, e, func() (models.Profile, error) {
		r, ok := e.records.Get(id)
		if !ok {
			return models.Profile{}, errNotCached
		}
		return r.Profile()
	})
	if err != errNotCached {
		return rec, err
	}
	if e.cfg.Profiles == nil {
		return models.Profile{}, ErrNotConnected
	}
	return e.cfg.Profiles.Lookup(ctx, id)
}

// RecordLoaded reports whether a participant's durable record is in memory.
func (e *Engine) RecordLoaded(ctx context.Context, id string) (bool, error) {
	return call(ctx, e, func() (bool, error) {
		_, ok := e.records.Get(id)
		return ok, nil
	})
}

// Alive reports whether a rostered participant is alive in the running round.
func (e *Engine) Alive(ctx context.Context, id string) (bool, error) {
	return call(ctx, e, func() (bool, error) {
		if !e.machine.Running() {
			return false, round.ErrNotRunning
		}
		st, ok := e.machine.Lifecycle(id)
		if !ok {
			return false, round.ErrNotInRoster
		}
		return st == models.StateAlive, nil
	})
}
