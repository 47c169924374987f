// Package round implements the single-round lifecycle:
// none -> preparing -> active <-> paused -> ended (-> none).
package round

import (
	"time"

	"github.com/google/uuid"

	"github.com/openmohaa/match-server/internal/common/clock"
	"github.com/openmohaa/match-server/internal/models"
)

// Directory is the participant directory the machine writes lifecycle,
// faction and placement through.
type Directory interface {
	SetState(id string, s models.LifecycleState)
	SetFaction(id string, f models.Faction)
	Place(id string, pos models.Vec3)
}

// Spawner draws spawn positions.
type Spawner interface {
	Spawn(mapID int, f models.Faction) models.Vec3
	Lobby() models.Vec3
}

type Config struct {
	Duration  time.Duration
	Clock     clock.Clock
	Directory Directory
	Spawner   Spawner
	// NewID defaults to a random UUID.
	NewID func() string
	// OnExpire runs on the timer goroutine when the round clock runs out. The
	// round may already be gone by then; receivers must check the id.
	OnExpire func(roundID string)
}

// Machine owns at most one round. It is not safe for concurrent use.
type Machine struct {
	cfg   Config
	round *Round
}

// Round is the state of the current round.
type Round struct {
	ID        string
	Map       models.MapInfo
	State     models.RoundState
	StartedAt time.Time

	attackers []*models.PlayerRoundStat
	defenders []*models.PlayerRoundStat
	life      map[string]models.LifecycleState

	timer     clock.Timer
	armedAt   time.Time
	remaining time.Duration
	pausedAt  time.Time
	pausedFor time.Duration
}

func NewMachine(cfg Config) *Machine {
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	if cfg.OnExpire == nil {
		cfg.OnExpire = func(string) {}
	}
	return &Machine{cfg: cfg}
}

// State returns the current round state, RoundNone when no round exists.
func (m *Machine) State() models.RoundState {
	if m.round == nil {
		return models.RoundNone
	}
	return m.round.State
}

// RoundID returns the current round id or "".
func (m *Machine) RoundID() string {
	if m.round == nil {
		return ""
	}
	return m.round.ID
}

// Running reports whether the round is active or paused.
func (m *Machine) Running() bool {
	s := m.State()
	return s == models.RoundActive || s == models.RoundPaused
}

// Create prepares a round on a map. Spectators and duplicate ids in the
// roster are skipped.
func (m *Machine) Create(mapInfo models.MapInfo, roster []models.Participant) (*Round, error) {
	if m.round != nil {
		return nil, ErrAlreadyRunning
	}
	r := &Round{
		ID:    m.cfg.NewID(),
		Map:   mapInfo,
		State: models.RoundPreparing,
		life:  make(map[string]models.LifecycleState),
	}
	for _, p := range roster {
		if !p.Faction.Combat() {
			continue
		}
		if _, seen := r.life[p.ID]; seen {
			continue
		}
		r.add(models.NewPlayerRoundStat(p))
		r.life[p.ID] = p.State
	}
	m.round = r
	return r, nil
}

// Start moves a prepared round to active, arms the round clock and spawns
// every rostered participant.
func (m *Machine) Start() error {
	r := m.round
	if r == nil {
		return ErrNoRound
	}
	if r.State != models.RoundPreparing {
		return ErrAlreadyRunning
	}
	r.State = models.RoundActive
	r.StartedAt = m.cfg.Clock.Now()
	r.remaining = m.cfg.Duration
	m.arm()

	for _, s := range r.all() {
		m.spawn(s)
	}
	return nil
}

// Abort discards a round that never started.
func (m *Machine) Abort() error {
	if m.round == nil {
		return ErrNoRound
	}
	if m.round.State != models.RoundPreparing {
		return ErrAlreadyRunning
	}
	m.round = nil
	return nil
}

// TogglePause pauses or resumes the round clock.
func (m *Machine) TogglePause(pause bool) error {
	r := m.round
	if r == nil {
		return ErrNotRunning
	}
	now := m.cfg.Clock.Now()
	if pause {
		switch r.State {
		case models.RoundPaused:
			return ErrAlreadyPaused
		case models.RoundActive:
		default:
			return ErrNotRunning
		}
		m.disarm()
		r.remaining -= now.Sub(r.armedAt)
		if r.remaining < 0 {
			r.remaining = 0
		}
		r.pausedAt = now
		r.State = models.RoundPaused
		return nil
	}

	switch r.State {
	case models.RoundActive:
		return ErrNotPaused
	case models.RoundPaused:
	default:
		return ErrNotRunning
	}
	r.pausedFor += now.Sub(r.pausedAt)
	r.pausedAt = time.Time{}
	r.State = models.RoundActive
	m.arm()
	return nil
}

// Result computes the winner from ALIVE counts: strictly more alive wins,
// equal counts (0-0 included) draw.
func (m *Machine) Result() (models.RoundResult, error) {
	if !m.Running() {
		return models.RoundResult{}, ErrNotRunning
	}
	return m.round.result(), nil
}

// Decided reports whether a faction has no one left alive.
func (m *Machine) Decided() bool {
	if !m.Running() {
		return false
	}
	a, d := m.round.aliveCounts()
	return a == 0 || d == 0
}

// End concludes the round and returns its archive. The winner and tallies are
// computed before any state is touched; the machine is back to none after.
func (m *Machine) End() (*models.RoundArchive, error) {
	if !m.Running() {
		return nil, ErrNotRunning
	}
	r := m.round
	now := m.cfg.Clock.Now()

	archive := &models.RoundArchive{
		ID:        r.ID,
		Map:       r.Map,
		StartedAt: r.StartedAt,
		EndedAt:   now,
		Result:    r.result(),
		Players:   r.tallies(),
	}

	m.disarm()
	lobby := m.cfg.Spawner.Lobby()
	for _, s := range r.all() {
		m.cfg.Directory.SetState(s.ID, models.StateIdle)
		m.cfg.Directory.Place(s.ID, lobby)
	}
	r.State = models.RoundEnded
	m.round = nil
	return archive, nil
}

// AddParticipant joins a participant to the running round and spawns them.
// A returning id keeps its existing record and lifecycle state; the bool
// reports reuse.
func (m *Machine) AddParticipant(p models.Participant) (models.PlayerRoundStat, bool, error) {
	if !m.Running() {
		return models.PlayerRoundStat{}, false, ErrNotRunning
	}
	if !p.Faction.Combat() {
		return models.PlayerRoundStat{}, false, ErrInvalidFaction
	}
	r := m.round
	s, _ := r.locate(p.ID)
	if s != nil {
		if s.Faction != p.Faction {
			r.move(s, p.Faction)
			m.cfg.Directory.SetFaction(s.ID, p.Faction)
		}
		return s.Clone(), true, nil
	}
	s = models.NewPlayerRoundStat(p)
	r.add(s)
	m.spawn(s)
	return s.Clone(), false, nil
}

// RemoveParticipant drops a participant's record and returns them to idle.
func (m *Machine) RemoveParticipant(id string) (models.PlayerRoundStat, error) {
	if !m.Running() {
		return models.PlayerRoundStat{}, ErrNotRunning
	}
	r := m.round
	s, _ := r.locate(id)
	if s == nil {
		return models.PlayerRoundStat{}, ErrNotInRoster
	}
	out := s.Clone()
	r.remove(s)
	delete(r.life, id)
	m.cfg.Directory.SetState(id, models.StateIdle)
	m.cfg.Directory.Place(id, m.cfg.Spawner.Lobby())
	return out, nil
}

// MarkDead records a participant's death.
func (m *Machine) MarkDead(id string) error {
	if !m.Running() {
		return ErrNotRunning
	}
	if s, _ := m.round.locate(id); s == nil {
		return ErrNotInRoster
	}
	m.round.life[id] = models.StateDead
	m.cfg.Directory.SetState(id, models.StateDead)
	return nil
}

// SwapFaction moves a record to the other combat roster, keeping its counters.
func (m *Machine) SwapFaction(id string, f models.Faction) error {
	if !m.Running() {
		return ErrNotRunning
	}
	if !f.Combat() {
		return ErrInvalidFaction
	}
	s, _ := m.round.locate(id)
	if s == nil {
		return ErrNotInRoster
	}
	if s.Faction != f {
		m.round.move(s, f)
	}
	m.cfg.Directory.SetFaction(id, f)
	return nil
}

// Locate returns the live record for a rostered participant.
func (m *Machine) Locate(id string) (*models.PlayerRoundStat, error) {
	if m.round == nil {
		return nil, ErrNotInRoster
	}
	s, _ := m.round.locate(id)
	if s == nil {
		return nil, ErrNotInRoster
	}
	return s, nil
}

// Lifecycle returns the machine's view of a rostered participant's state.
func (m *Machine) Lifecycle(id string) (models.LifecycleState, bool) {
	if m.round == nil {
		return "", false
	}
	st, ok := m.round.life[id]
	return st, ok
}

// Snapshot returns a copy of the current round for queries.
func (m *Machine) Snapshot() (models.RoundSnapshot, bool) {
	r := m.round
	if r == nil {
		return models.RoundSnapshot{State: models.RoundNone}, false
	}
	snap := models.RoundSnapshot{
		ID:        r.ID,
		Map:       r.Map,
		State:     r.State,
		StartedAt: r.StartedAt,
		Paused:    r.State == models.RoundPaused,
		Attackers: cloneAll(r.attackers),
		Defenders: cloneAll(r.defenders),
	}
	if !r.StartedAt.IsZero() {
		snap.Elapsed = m.elapsed()
		snap.Remaining = m.cfg.Duration - snap.Elapsed
		if snap.Remaining < 0 {
			snap.Remaining = 0
		}
	} else {
		snap.Remaining = m.cfg.Duration
	}
	return snap, true
}

func (m *Machine) elapsed() time.Duration {
	r := m.round
	now := m.cfg.Clock.Now()
	e := now.Sub(r.StartedAt) - r.pausedFor
	if r.State == models.RoundPaused {
		e -= now.Sub(r.pausedAt)
	}
	return e
}

func (m *Machine) spawn(s *models.PlayerRoundStat) {
	m.round.life[s.ID] = models.StateAlive
	m.cfg.Directory.SetState(s.ID, models.StateAlive)
	m.cfg.Directory.Place(s.ID, m.cfg.Spawner.Spawn(m.round.Map.ID, s.Faction))
}

func (m *Machine) arm() {
	r := m.round
	id := r.ID
	r.armedAt = m.cfg.Clock.Now()
	r.timer = m.cfg.Clock.AfterFunc(r.remaining, func() { m.cfg.OnExpire(id) })
}

func (m *Machine) disarm() {
	if m.round.timer != nil {
		m.round.timer.Stop()
		m.round.timer = nil
	}
}

func (r *Round) roster(f models.Faction) *[]*models.PlayerRoundStat {
	if f == models.FactionAttackers {
		return &r.attackers
	}
	return &r.defenders
}

func (r *Round) add(s *models.PlayerRoundStat) {
	list := r.roster(s.Faction)
	*list = append(*list, s)
}

func (r *Round) remove(s *models.PlayerRoundStat) {
	list := r.roster(s.Faction)
	for i, x := range *list {
		if x == s {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func (r *Round) move(s *models.PlayerRoundStat, f models.Faction) {
	r.remove(s)
	s.Faction = f
	r.add(s)
}

func (r *Round) locate(id string) (*models.PlayerRoundStat, int) {
	for i, s := range r.attackers {
		if s.ID == id {
			return s, i
		}
	}
	for i, s := range r.defenders {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

func (r *Round) all() []*models.PlayerRoundStat {
	out := make([]*models.PlayerRoundStat, 0, len(r.attackers)+len(r.defenders))
	out = append(out, r.attackers...)
	return append(out, r.defenders...)
}

func (r *Round) aliveCounts() (attackers, defenders int) {
	for _, s := range r.attackers {
		if r.life[s.ID] == models.StateAlive {
			attackers++
		}
	}
	for _, s := range r.defenders {
		if r.life[s.ID] == models.StateAlive {
			defenders++
		}
	}
	return attackers, defenders
}

func (r *Round) result() models.RoundResult {
	a, d := r.aliveCounts()
	switch {
	case a > d:
		return models.RoundResult{Winner: models.FactionAttackers}
	case d > a:
		return models.RoundResult{Winner: models.FactionDefenders}
	default:
		return models.RoundResult{Draw: true}
	}
}

func (r *Round) tallies() []models.PlayerRoundStat {
	return cloneAll(r.all())
}

func cloneAll(list []*models.PlayerRoundStat) []models.PlayerRoundStat {
	out := make([]models.PlayerRoundStat, 0, len(list))
	for _, s := range list {
		out = append(out, s.Clone())
	}
	return out
}
