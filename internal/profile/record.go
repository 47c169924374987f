package profile

import (
	"fmt"
	"time"

	"github.com/openmohaa/match-server/internal/config"
	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/stats"
)

// Record is a loaded profile plus the progression rules applied to it.
// Mutate it only through its methods.
type Record struct {
	profile  models.Profile
	settings config.Settings
}

func newRecord(p *models.Profile, s config.Settings) *Record {
	return &Record{profile: *p, settings: s}
}

// ID returns the identity the record belongs to.
func (r *Record) ID() string {
	if r == nil {
		return ""
	}
	return r.profile.ID
}

// Profile returns a copy of the current state.
func (r *Record) Profile() (models.Profile, error) {
	if r == nil {
		return models.Profile{}, ErrRecordNotLoaded
	}
	p := r.profile
	p.Names = append([]models.NameChange(nil), r.profile.Names...)
	return p, nil
}

// Document returns the record state for a diff-merge save.
func (r *Record) Document() (Document, error) {
	if r == nil {
		return nil, ErrRecordNotLoaded
	}
	return FromProfile(&r.profile)
}

// ApplyRoundResult folds one round's tally into the lifetime totals and
// applies the outcome's rating and experience change.
func (r *Record) ApplyRoundResult(tally models.PlayerRoundStat, outcome models.Outcome, at time.Time) error {
	if r == nil {
		return ErrRecordNotLoaded
	}
	var apply func()
	switch outcome {
	case models.OutcomeWin:
		apply = r.applyWin
	case models.OutcomeLoss:
		apply = r.applyLoss
	case models.OutcomeDraw:
		apply = r.applyDraw
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	p := &r.profile
	p.Matches++
	p.Kills += stats.Count(tally.Kill)
	p.Deaths += stats.Count(tally.Death)
	p.Assists += stats.Count(tally.Assist)
	p.ShotsFired += stats.Count(tally.ShotsFired)
	p.ShotsHit += stats.Count(tally.ShotsHit)
	p.Accuracy = stats.Accuracy(float64(p.ShotsHit), float64(p.ShotsFired))

	apply()
	p.Level = levelFor(p.Experience, r.settings.ExperiencePerLevel)
	p.UpdatedAt = at
	return nil
}

func (r *Record) applyWin() {
	r.profile.Wins++
	r.profile.Rating += r.settings.WinRating
	r.profile.Experience += 2 * r.settings.MatchExperience
}

func (r *Record) applyLoss() {
	r.profile.Losses++
	r.profile.Rating -= r.settings.LossRating
	if r.profile.Rating < 0 {
		r.profile.Rating = 0
	}
	r.profile.Experience += r.settings.MatchExperience
}

func (r *Record) applyDraw() {
	r.profile.Draws++
	r.profile.Experience += r.settings.MatchExperience
}

// Rename records a new display name in the history. It reports whether the
// name changed.
func (r *Record) Rename(name string, at time.Time) bool {
	if r == nil || name == "" || name == r.profile.Name {
		return false
	}
	r.profile.Name = name
	r.profile.Names = append(r.profile.Names, models.NameChange{Name: name, SeenAt: at})
	return true
}

// SetAccessGroup updates the access group. It reports whether it changed.
func (r *Record) SetAccessGroup(group string) bool {
	if r == nil || group == "" || group == r.profile.AccessGroup {
		return false
	}
	r.profile.AccessGroup = group
	return true
}

func levelFor(experience, perLevel int64) int {
	if perLevel <= 0 {
		return 1
	}
	return 1 + int(experience/perLevel)
}

func defaultProfile(id, name, group string, at time.Time) *models.Profile {
	p := &models.Profile{
		ID:          id,
		Name:        name,
		AccessGroup: group,
		Level:       1,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if name != "" {
		p.Names = []models.NameChange{{Name: name, SeenAt: at}}
	}
	return p
}

// Cache holds the records loaded for connected participants. It belongs to
// the engine loop and is not safe for concurrent use.
type Cache struct {
	records map[string]*Record
}

func NewCache() *Cache {
	return &Cache{records: make(map[string]*Record)}
}

func (c *Cache) Put(r *Record) {
	if r != nil {
		c.records[r.ID()] = r
	}
}

func (c *Cache) Get(id string) (*Record, bool) {
	r, ok := c.records[id]
	return r, ok
}

// Require returns the record or ErrRecordNotLoaded.
func (c *Cache) Require(id string) (*Record, error) {
	r, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotLoaded, id)
	}
	return r, nil
}

func (c *Cache) Delete(id string) {
	delete(c.records, id)
}

// Each calls fn for every cached record.
func (c *Cache) Each(fn func(*Record)) {
	for _, r := range c.records {
		fn(r)
	}
}

func (c *Cache) Len() int {
	return len(c.records)
}
