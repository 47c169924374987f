package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmohaa/match-server/internal/common/clock"
	"github.com/openmohaa/match-server/internal/config"
	"github.com/openmohaa/match-server/internal/models"
)

var epoch = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

// flakyStore fails the first n reads with a transient error.
type flakyStore struct {
	Store
	failures int
	reads    int
	upserts  int
}

func (f *flakyStore) Get(ctx context.Context, id string) (Document, error) {
	f.reads++
	if f.reads <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.Store.Get(ctx, id)
}

func (f *flakyStore) Upsert(ctx context.Context, id string, merge MergeFunc) error {
	f.upserts++
	return f.Store.Upsert(ctx, id, merge)
}

type staticGroups string

func (g staticGroups) AccessGroup(context.Context, string) (string, error) {
	return string(g), nil
}

func newService(store Store) *Service {
	return NewService(ServiceConfig{
		Store:    store,
		Settings: config.DefaultSettings(),
		Clock:    clock.NewFake(epoch),
		Groups:   staticGroups("member"),
		Backoff:  time.Millisecond,
	})
}

func TestLoad_CreatesOnMiss(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(mem)

	rec, err := svc.Load(context.Background(), "g1", "Ace")
	require.NoError(t, err)
	p, err := rec.Profile()
	require.NoError(t, err)
	assert.Equal(t, "Ace", p.Name)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, "member", p.AccessGroup)
	assert.Len(t, p.Names, 1)

	_, stored := mem.Raw("g1")
	assert.True(t, stored, "default record is persisted immediately")
}

func TestLoad_ExistingRecordRenamed(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(mem)
	ctx := context.Background()

	_, err := svc.Load(ctx, "g1", "Ace")
	require.NoError(t, err)
	rec, err := svc.Load(ctx, "g1", "Ace2")
	require.NoError(t, err)

	p, _ := rec.Profile()
	assert.Equal(t, "Ace2", p.Name)
	require.Len(t, p.Names, 2)
	assert.Equal(t, "Ace", p.Names[0].Name)
}

func TestLoad_RetriesTransientReads(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), failures: 2}
	svc := newService(store)

	_, err := svc.Load(context.Background(), "g1", "Ace")
	require.NoError(t, err)
	assert.Equal(t, 3, store.reads)
	assert.Equal(t, 1, store.upserts)
}

func TestLoad_NoCreateWhenReadsKeepFailing(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), failures: 10}
	svc := newService(store)

	_, err := svc.Load(context.Background(), "g1", "Ace")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, config.DefaultSettings().LoadAttempts, store.reads)
	assert.Equal(t, 0, store.upserts)
}

func TestSave_Idempotent(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(mem)
	ctx := context.Background()

	rec, err := svc.Load(ctx, "g1", "Ace")
	require.NoError(t, err)
	require.NoError(t, svc.Save(ctx, rec))
	first, _ := mem.Raw("g1")
	require.NoError(t, svc.Save(ctx, rec))
	second, _ := mem.Raw("g1")
	assert.Equal(t, string(first), string(second))
}

func TestSave_KeepsFieldsFromOtherWriters(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(mem)
	ctx := context.Background()

	rec, err := svc.Load(ctx, "g1", "Ace")
	require.NoError(t, err)

	require.NoError(t, mem.Upsert(ctx, "g1", func(existing Document) Document {
		existing["clan_tag"] = []byte(`"[MOH]"`)
		return existing
	}))

	require.NoError(t, rec.ApplyRoundResult(models.PlayerRoundStat{Kill: 3}, models.OutcomeWin, epoch))
	require.NoError(t, svc.Save(ctx, rec))

	doc, err := mem.Get(ctx, "g1")
	require.NoError(t, err)
	assert.JSONEq(t, `"[MOH]"`, string(doc["clan_tag"]))
	assert.JSONEq(t, `3`, string(doc["kills"]))
}

func TestSave_NilRecord(t *testing.T) {
	svc := newService(NewMemoryStore())
	err := svc.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRecordNotLoaded)
}

func TestApplyRoundResult(t *testing.T) {
	s := config.DefaultSettings()
	tally := models.PlayerRoundStat{Kill: 2, Death: 1, Assist: 1, ShotsFired: 3, ShotsHit: 2}

	tests := []struct {
		name       string
		rating     int
		outcome    models.Outcome
		wantRating int
		wantExp    int64
		wantWins   int64
		wantLosses int64
		wantDraws  int64
	}{
		{"win", 10, models.OutcomeWin, 10 + s.WinRating, 2 * s.MatchExperience, 1, 0, 0},
		{"loss", 100, models.OutcomeLoss, 100 - s.LossRating, s.MatchExperience, 0, 1, 0},
		{"loss floors at zero", 5, models.OutcomeLoss, 0, s.MatchExperience, 0, 1, 0},
		{"draw keeps rating", 10, models.OutcomeDraw, 10, s.MatchExperience, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord(&models.Profile{ID: "g1", Rating: tt.rating, Level: 1}, s)
			require.NoError(t, rec.ApplyRoundResult(tally, tt.outcome, epoch))

			p, _ := rec.Profile()
			assert.Equal(t, tt.wantRating, p.Rating)
			assert.Equal(t, tt.wantExp, p.Experience)
			assert.Equal(t, tt.wantWins, p.Wins)
			assert.Equal(t, tt.wantLosses, p.Losses)
			assert.Equal(t, tt.wantDraws, p.Draws)
			assert.Equal(t, int64(1), p.Matches)
			assert.Equal(t, int64(2), p.Kills)
			assert.Equal(t, 0.67, p.Accuracy)
			assert.Equal(t, epoch, p.UpdatedAt)
		})
	}
}

func TestApplyRoundResult_LevelsUp(t *testing.T) {
	s := config.DefaultSettings()
	rec := newRecord(&models.Profile{ID: "g1", Experience: s.ExperiencePerLevel - s.MatchExperience, Level: 1}, s)
	require.NoError(t, rec.ApplyRoundResult(models.PlayerRoundStat{}, models.OutcomeDraw, epoch))

	p, _ := rec.Profile()
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 0.0, p.Accuracy)
}

func TestApplyRoundResult_NotLoaded(t *testing.T) {
	var rec *Record
	err := rec.ApplyRoundResult(models.PlayerRoundStat{}, models.OutcomeWin, epoch)
	assert.ErrorIs(t, err, ErrRecordNotLoaded)

	cache := NewCache()
	_, err = cache.Require("g1")
	assert.ErrorIs(t, err, ErrRecordNotLoaded)
}

func TestLookup(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(mem)

	_, err := svc.Lookup(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Load(context.Background(), "g1", "Ace")
	require.NoError(t, err)

	p, err := svc.Lookup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "Ace", p.Name)
	assert.Equal(t, 1, p.Level)
}

func TestApplyRoundResult_RoundsFractionalCounters(t *testing.T) {
	rec := newRecord(&models.Profile{ID: "g1", Kills: 10, Deaths: 4, Level: 1}, config.DefaultSettings())
	tally := models.PlayerRoundStat{Kill: 2.5, Death: -1, Assist: 0.4, ShotsFired: 3.6, ShotsHit: 1.5}
	require.NoError(t, rec.ApplyRoundResult(tally, models.OutcomeWin, epoch))

	p, _ := rec.Profile()
	assert.Equal(t, int64(13), p.Kills)
	assert.Equal(t, int64(4), p.Deaths)
	assert.Equal(t, int64(0), p.Assists)
	assert.Equal(t, int64(4), p.ShotsFired)
	assert.Equal(t, int64(2), p.ShotsHit)
	assert.Equal(t, 0.5, p.Accuracy)
}
