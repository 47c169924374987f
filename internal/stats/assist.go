package stats

import (
	"sort"
	"time"

	"github.com/openmohaa/match-server/internal/common/clock"
)

// DefaultAssistWindow is how long a damage contribution stays eligible.
const DefaultAssistWindow = 15 * time.Second

// AssistTracker keeps, per potential victim, the last time each contributor
// damaged them.
type AssistTracker struct {
	clock   clock.Clock
	window  time.Duration
	entries map[string]map[string]time.Time
}

func NewAssistTracker(clk clock.Clock, window time.Duration) *AssistTracker {
	if window <= 0 {
		window = DefaultAssistWindow
	}
	return &AssistTracker{
		clock:   clk,
		window:  window,
		entries: make(map[string]map[string]time.Time),
	}
}

func (t *AssistTracker) Record(victim, contributor string) {
	if victim == "" || contributor == "" || victim == contributor {
		return
	}
	m := t.entries[victim]
	if m == nil {
		m = make(map[string]time.Time)
		t.entries[victim] = m
	}
	m[contributor] = t.clock.Now()
}

// Consume returns the contributors still inside the window, excluding the
// killer, in id order. The victim's list is cleared either way.
func (t *AssistTracker) Consume(victim, killer string) []string {
	m := t.entries[victim]
	delete(t.entries, victim)

	now := t.clock.Now()
	var out []string
	for id, at := range m {
		if id == killer {
			continue
		}
		if now.Sub(at) <= t.window {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (t *AssistTracker) Forget(id string) {
	delete(t.entries, id)
	for _, m := range t.entries {
		delete(m, id)
	}
}
