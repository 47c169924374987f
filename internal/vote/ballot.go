// Package vote runs the pre-round map nomination vote.
package vote

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/openmohaa/match-server/internal/common/clock"
	"github.com/openmohaa/match-server/internal/models"
)

var (
	ErrInvalidState = errors.New("only idle participants can vote")
	ErrNotFound     = errors.New("no map matches the selector")
	ErrAmbiguous    = errors.New("selector matches more than one map")
	ErrAlreadyVoted = errors.New("already voted for this map")
	ErrMaxNominated = errors.New("nomination limit reached")
)

// AmbiguousError lists the maps a selector matched.
type AmbiguousError struct {
	Selector   string
	Candidates []models.MapInfo
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.Name
	}
	return fmt.Sprintf("%q matches %d maps: %s", e.Selector, len(e.Candidates), strings.Join(names, ", "))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// MapResolver turns a selector into candidate maps.
type MapResolver interface {
	Resolve(selector string) []models.MapInfo
}

type Config struct {
	Duration       time.Duration
	MaxNominations int
	Clock          clock.Clock
	Maps           MapResolver
	// IntN picks a tie-break index in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
	// OnExpire runs on the timer goroutine with the generation that armed the
	// timer. Compare against Generation before resolving.
	OnExpire func(generation uint64)
}

type nomination struct {
	info   models.MapInfo
	owner  string
	voters []string
}

func (n *nomination) has(id string) bool {
	for _, v := range n.voters {
		if v == id {
			return true
		}
	}
	return false
}

// Ballot holds the open nominations. It is not safe for concurrent use.
type Ballot struct {
	cfg         Config
	nominations []*nomination
	timer       clock.Timer
	generation  uint64
}

func NewBallot(cfg Config) *Ballot {
	if cfg.IntN == nil {
		cfg.IntN = rand.IntN
	}
	if cfg.OnExpire == nil {
		cfg.OnExpire = func(uint64) {}
	}
	return &Ballot{cfg: cfg}
}

// Open reports whether any nomination exists.
func (b *Ballot) Open() bool {
	return len(b.nominations) > 0
}

// Generation changes every time the ballot is cleared.
func (b *Ballot) Generation() uint64 {
	return b.generation
}

// Vote nominates or votes for the map matching selector. The first
// nomination arms the resolution timer.
func (b *Ballot) Vote(p models.Participant, selector string) (models.Nomination, error) {
	if p.State != models.StateIdle {
		return models.Nomination{}, ErrInvalidState
	}
	candidates := b.cfg.Maps.Resolve(selector)
	switch len(candidates) {
	case 0:
		return models.Nomination{}, ErrNotFound
	case 1:
	default:
		return models.Nomination{}, &AmbiguousError{Selector: selector, Candidates: candidates}
	}
	target := candidates[0]

	n := b.find(target.ID)
	if n != nil {
		if n.has(p.ID) {
			return models.Nomination{}, ErrAlreadyVoted
		}
		n.voters = append(n.voters, p.ID)
	} else {
		if b.cfg.MaxNominations > 0 && len(b.nominations) >= b.cfg.MaxNominations {
			return models.Nomination{}, ErrMaxNominated
		}
		n = &nomination{info: target, owner: p.ID, voters: []string{p.ID}}
		b.nominations = append(b.nominations, n)
	}

	if b.timer == nil {
		gen := b.generation
		b.timer = b.cfg.Clock.AfterFunc(b.cfg.Duration, func() { b.cfg.OnExpire(gen) })
	}
	return b.view(n, b.total()), nil
}

// Nominations returns the nominations in the order they were opened.
func (b *Ballot) Nominations() []models.Nomination {
	total := b.total()
	out := make([]models.Nomination, 0, len(b.nominations))
	for _, n := range b.nominations {
		out = append(out, b.view(n, total))
	}
	return out
}

// Resolve picks uniformly at random among the nominations with the most
// voters and clears the ballot. It reports false when nothing was nominated.
func (b *Ballot) Resolve() (models.MapInfo, bool) {
	best := 0
	for _, n := range b.nominations {
		if len(n.voters) > best {
			best = len(n.voters)
		}
	}
	if best == 0 {
		b.clear()
		return models.MapInfo{}, false
	}

	var ties []models.MapInfo
	for _, n := range b.nominations {
		if len(n.voters) == best {
			ties = append(ties, n.info)
		}
	}
	winner := ties[b.cfg.IntN(len(ties))]
	b.clear()
	return winner, true
}

// Cancel drops every nomination and disarms the timer.
func (b *Ballot) Cancel() {
	b.clear()
}

func (b *Ballot) clear() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.nominations = nil
	b.generation++
}

func (b *Ballot) find(mapID int) *nomination {
	for _, n := range b.nominations {
		if n.info.ID == mapID {
			return n
		}
	}
	return nil
}

func (b *Ballot) total() int {
	t := 0
	for _, n := range b.nominations {
		t += len(n.voters)
	}
	return t
}

func (b *Ballot) view(n *nomination, total int) models.Nomination {
	v := models.Nomination{
		Map:    n.info,
		Owner:  n.owner,
		Voters: append([]string(nil), n.voters...),
	}
	if total > 0 {
		v.Percent = int(math.Round(float64(len(n.voters)) * 100 / float64(total)))
	}
	return v
}
