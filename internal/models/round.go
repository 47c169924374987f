package models

import "time"

// RoundState is the lifecycle state of the single active round
type RoundState string

const (
	RoundNone      RoundState = "none"
	RoundPreparing RoundState = "preparing"
	RoundActive    RoundState = "active"
	RoundPaused    RoundState = "paused"
	RoundEnded     RoundState = "ended"
)

// PlayerRoundStat holds one participant's counters for the current round.
type PlayerRoundStat struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Faction           Faction            `json:"faction"`
	Kill              float64            `json:"kill"`
	Death             float64            `json:"death"`
	Assist            float64            `json:"assist"`
	ShotsFired        float64            `json:"shots_fired"`
	ShotsHit          float64            `json:"shots_hit"`
	Accuracy          float64            `json:"accuracy"`
	DamageDealt       map[string]float64 `json:"damage_dealt"`
	DamageReceived    map[string]float64 `json:"damage_received"`
	LastDeathPosition Vec3               `json:"last_death_position"`
}

// NewPlayerRoundStat returns zeroed counters for a participant.
func NewPlayerRoundStat(p Participant) *PlayerRoundStat {
	return &PlayerRoundStat{
		ID:             p.ID,
		Name:           p.Name,
		Faction:        p.Faction,
		DamageDealt:    make(map[string]float64),
		DamageReceived: make(map[string]float64),
	}
}

// Clone returns a deep copy.
func (s *PlayerRoundStat) Clone() PlayerRoundStat {
	c := *s
	c.DamageDealt = cloneNumberMap(s.DamageDealt)
	c.DamageReceived = cloneNumberMap(s.DamageReceived)
	return c
}

func cloneNumberMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RoundResult is the outcome of a concluded round. Winner is empty on a draw.
type RoundResult struct {
	Winner Faction `json:"winner,omitempty"`
	Draw   bool    `json:"draw"`
}

// OutcomeFor maps the round result to one participant's outcome.
func (r RoundResult) OutcomeFor(f Faction) Outcome {
	switch {
	case r.Draw:
		return OutcomeDraw
	case r.Winner == f:
		return OutcomeWin
	default:
		return OutcomeLoss
	}
}

// Outcome is a single participant's result
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// RoundSnapshot is the query view of the current round.
type RoundSnapshot struct {
	ID        string            `json:"id"`
	Map       MapInfo           `json:"map"`
	State     RoundState        `json:"state"`
	StartedAt time.Time         `json:"started_at,omitempty"`
	Paused    bool              `json:"paused"`
	Elapsed   time.Duration     `json:"elapsed"`
	Remaining time.Duration     `json:"remaining"`
	Attackers []PlayerRoundStat `json:"attackers"`
	Defenders []PlayerRoundStat `json:"defenders"`
}

// RoundArchive is the durable record of one concluded round.
type RoundArchive struct {
	ID        string            `json:"id"`
	Map       MapInfo           `json:"map"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
	Result    RoundResult       `json:"result"`
	Players   []PlayerRoundStat `json:"players"`
}
