package stats

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/openmohaa/match-server/internal/common/clock"
	"github.com/openmohaa/match-server/internal/models"
)

var ErrNotInRoster = errors.New("participant not in a combat roster")

// Roster resolves a participant to the stat record in its faction roster.
type Roster interface {
	Locate(id string) (*models.PlayerRoundStat, error)
}

// Aggregator applies validated deltas to the active round's counters. It is
// not safe for concurrent use; the engine loop serializes access.
type Aggregator struct {
	roster  Roster
	assists *AssistTracker
}

func NewAggregator(roster Roster, clk clock.Clock, assistWindow time.Duration) *Aggregator {
	return &Aggregator{
		roster:  roster,
		assists: NewAssistTracker(clk, assistWindow),
	}
}

// ApplyDelta merges delta into one participant's field. A delta of the wrong
// shape is not an error: it returns false and leaves the record untouched.
func (a *Aggregator) ApplyDelta(id, field string, delta any) (bool, error) {
	stat, err := a.roster.Locate(id)
	if err != nil {
		return false, err
	}
	f, err := ParseField(field)
	if err != nil {
		return false, err
	}
	return apply(stat, f, delta)
}

// MergeSnapshot folds a compact public snapshot into the participant's
// record. Unknown, private or malformed keys are skipped. Snapshots must carry
// each accumulated delta exactly once: re-applying one double counts.
func (a *Aggregator) MergeSnapshot(id string, partial map[string]any) ([]Field, error) {
	stat, err := a.roster.Locate(id)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var applied []Field
	var errs []error
	for _, k := range keys {
		f, err := ParseField(k)
		if err != nil || !f.Public() {
			continue
		}
		ok, err := apply(stat, f, partial[k])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			applied = append(applied, f)
		}
	}
	return applied, errors.Join(errs...)
}

// RecordContribution notes that contributor damaged victim just now.
func (a *Aggregator) RecordContribution(victim, contributor string) {
	a.assists.Record(victim, contributor)
}

// ConsumeAssists credits one assist to every recent contributor to victim's
// death other than the killer, then clears the victim's list.
func (a *Aggregator) ConsumeAssists(victim, killer string) []string {
	var credited []string
	for _, id := range a.assists.Consume(victim, killer) {
		stat, err := a.roster.Locate(id)
		if err != nil {
			continue
		}
		if ok, _ := apply(stat, FieldAssist, 1); ok {
			credited = append(credited, id)
		}
	}
	return credited
}

// Forget drops assist bookkeeping for a participant leaving the round.
func (a *Aggregator) Forget(id string) {
	a.assists.Forget(id)
}

func apply(stat *models.PlayerRoundStat, f Field, delta any) (bool, error) {
	ok, err := f.Validate(delta)
	if err != nil || !ok {
		return false, err
	}
	merged, err := f.Merge(f.Get(stat), delta)
	if err != nil {
		return false, err
	}
	f.set(stat, merged)

	if f == FieldShotsFired || f == FieldShotsHit {
		stat.Accuracy = Accuracy(stat.ShotsHit, stat.ShotsFired)
	}
	return true, nil
}

// Accuracy is hits/fired rounded to two decimals, and 0 when nothing was fired.
func Accuracy(hit, fired float64) float64 {
	if fired == 0 {
		return 0
	}
	return math.Round(hit/fired*100) / 100
}

// Count converts a round counter to a whole lifetime count. Fractional
// values round half away from zero and negative values count as zero.
func Count(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(v))
}
