package models

// Faction represents a participant's side
type Faction string

const (
	FactionAttackers  Faction = "attackers"
	FactionDefenders  Faction = "defenders"
	FactionSpectators Faction = "spectators"
)

// Valid reports whether f is one of the known factions.
func (f Faction) Valid() bool {
	switch f {
	case FactionAttackers, FactionDefenders, FactionSpectators:
		return true
	}
	return false
}

// Combat reports whether f fights in a round.
func (f Faction) Combat() bool {
	return f == FactionAttackers || f == FactionDefenders
}

// Opponent returns the opposing combat faction.
func (f Faction) Opponent() Faction {
	switch f {
	case FactionAttackers:
		return FactionDefenders
	case FactionDefenders:
		return FactionAttackers
	}
	return FactionSpectators
}

// LifecycleState is a participant's standing, independent of faction
type LifecycleState string

const (
	StateIdle       LifecycleState = "idle"
	StateSelecting  LifecycleState = "selecting"
	StateAlive      LifecycleState = "alive"
	StateDead       LifecycleState = "dead"
	StateSpectating LifecycleState = "spectating"
)

// Participant is a connected actor as seen by the engine.
type Participant struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Faction Faction        `json:"faction"`
	State   LifecycleState `json:"state"`
}

// Vec3 is a world position.
type Vec3 [3]float64
