package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/profile"
)

func doc(rating int) profile.Document {
	raw, _ := json.Marshal(rating)
	return profile.Document{"rating": raw}
}

func archive(id string) *models.RoundArchive {
	return &models.RoundArchive{
		ID:      id,
		Map:     models.MapInfo{ID: 3, Name: "dust"},
		EndedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Result:  models.RoundResult{Winner: models.FactionAttackers},
		Players: []models.PlayerRoundStat{
			{ID: "a1", Faction: models.FactionAttackers, Kill: 2},
			{ID: "d1", Faction: models.FactionDefenders, Death: 1},
		},
	}
}

type failureLog struct {
	mu       sync.Mutex
	failures []Failure
}

func (f *failureLog) record(fail Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, fail)
}

func (f *failureLog) list() []Failure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Failure(nil), f.failures...)
}

func TestEnqueueFull(t *testing.T) {
	// No workers started, so the single slot stays occupied.
	pool := NewPool(PoolConfig{WorkerCount: 1, QueueSize: 1, Logger: zap.NewNop()})

	require.NoError(t, pool.EnqueueSave("g1", doc(1)))

	start := time.Now()
	err := pool.EnqueueSave("g2", doc(2))
	duration := time.Since(start)

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, duration, 10*time.Millisecond, "enqueue must not block")
	assert.Equal(t, 1, pool.QueueDepth())
}

func TestEnqueueAfterStop(t *testing.T) {
	pool := NewPool(PoolConfig{Profiles: NewMockProfileSaver(), Logger: zap.NewNop()})
	pool.Start(context.Background())
	pool.Stop()

	assert.ErrorIs(t, pool.EnqueueSave("g1", doc(1)), ErrPoolStopped)
	assert.ErrorIs(t, pool.EnqueueArchive(archive("r1")), ErrPoolStopped)
	pool.Stop()
}

func TestSaveProfile_Retries(t *testing.T) {
	saver := NewMockProfileSaver()
	saver.Failures = 2
	fails := &failureLog{}

	pool := NewPool(PoolConfig{
		WorkerCount:  1,
		SaveAttempts: 3,
		RetryBackoff: time.Millisecond,
		Profiles:     saver,
		Logger:       zap.NewNop(),
		OnFailure:    fails.record,
	})
	pool.Start(context.Background())
	require.NoError(t, pool.EnqueueSave("g1", doc(7)))
	pool.Stop()

	assert.Equal(t, 3, saver.CallCount("g1"))
	assert.Equal(t, 1, saver.SavedCount())
	assert.Empty(t, fails.list())
}

func TestSaveProfile_FailureReported(t *testing.T) {
	saver := NewMockProfileSaver()
	saver.Failures = 5
	fails := &failureLog{}

	pool := NewPool(PoolConfig{
		WorkerCount:  1,
		SaveAttempts: 2,
		RetryBackoff: time.Millisecond,
		Profiles:     saver,
		Logger:       zap.NewNop(),
		OnFailure:    fails.record,
	})
	pool.Start(context.Background())
	require.NoError(t, pool.EnqueueSave("g1", doc(7)))
	pool.Stop()

	assert.Equal(t, 2, saver.CallCount("g1"))
	got := fails.list()
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].Job.ProfileID)
	assert.Equal(t, JobSaveProfile, got[0].Job.Kind)
}

func TestSaveProfile_CorruptedNotRetried(t *testing.T) {
	saver := NewMockProfileSaver()
	saver.Failures = 5
	saver.Err = profile.ErrCorrupted
	fails := &failureLog{}

	pool := NewPool(PoolConfig{
		WorkerCount:  1,
		SaveAttempts: 3,
		RetryBackoff: time.Millisecond,
		Profiles:     saver,
		Logger:       zap.NewNop(),
		OnFailure:    fails.record,
	})
	pool.Start(context.Background())
	require.NoError(t, pool.EnqueueSave("g1", doc(7)))
	pool.Stop()

	assert.Equal(t, 1, saver.CallCount("g1"))
	require.Len(t, fails.list(), 1)
	assert.True(t, errors.Is(fails.list()[0].Err, profile.ErrCorrupted))
}

func TestArchive_FlushedOnStop(t *testing.T) {
	ch := NewMockClickHouseConn()
	pool := NewPool(PoolConfig{
		WorkerCount:   1,
		BatchSize:     100,
		FlushInterval: time.Hour,
		ClickHouse:    ch,
		Logger:        zap.NewNop(),
	})
	pool.Start(context.Background())
	require.NoError(t, pool.EnqueueArchive(archive("r1")))
	require.NoError(t, pool.EnqueueArchive(archive("r2")))
	pool.Stop()

	rounds := ch.Rows("rounds")
	require.Len(t, rounds, 2)
	assert.Equal(t, "r1", rounds[0][0])
	assert.Equal(t, "attackers", rounds[0][5])

	players := ch.Rows("round_players")
	require.Len(t, players, 4)
	assert.Equal(t, "a1", players[0][2])
	assert.Equal(t, "win", players[0][5])
	assert.Equal(t, "loss", players[1][5])
}

func TestArchive_FlushedOnBatchSize(t *testing.T) {
	ch := NewMockClickHouseConn()
	pool := NewPool(PoolConfig{
		WorkerCount:   1,
		BatchSize:     2,
		FlushInterval: time.Hour,
		ClickHouse:    ch,
		Logger:        zap.NewNop(),
	})
	pool.Start(context.Background())
	defer pool.Stop()

	require.NoError(t, pool.EnqueueArchive(archive("r1")))
	require.NoError(t, pool.EnqueueArchive(archive("r2")))

	assert.Eventually(t, func() bool {
		return len(ch.Rows("rounds")) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestArchive_SendFailureReported(t *testing.T) {
	ch := NewMockClickHouseConn()
	ch.SendErr = errors.New("clickhouse down")
	fails := &failureLog{}

	pool := NewPool(PoolConfig{
		WorkerCount: 1,
		ClickHouse:  ch,
		Logger:      zap.NewNop(),
		OnFailure:   fails.record,
	})
	pool.Start(context.Background())
	require.NoError(t, pool.EnqueueArchive(archive("r1")))
	pool.Stop()

	got := fails.list()
	require.Len(t, got, 1)
	assert.Equal(t, JobArchiveRound, got[0].Job.Kind)
	assert.Equal(t, "r1", got[0].Job.Archive.ID)
}

func TestSaveProfile_RetryKeepsEnqueueOrder(t *testing.T) {
	saver := NewMockProfileSaver()
	saver.Failures = 1

	pool := NewPool(PoolConfig{
		WorkerCount:  4,
		SaveAttempts: 3,
		RetryBackoff: 20 * time.Millisecond,
		Profiles:     saver,
		Logger:       zap.NewNop(),
	})
	pool.Start(context.Background())
	require.NoError(t, pool.EnqueueSave("g1", doc(1)))
	require.NoError(t, pool.EnqueueSave("g1", doc(2)))
	pool.Stop()

	assert.Equal(t, 3, saver.CallCount("g1"))
	assert.Equal(t, doc(2), saver.Document("g1"))
}

func TestEnqueueRoutesProfileToOneWorker(t *testing.T) {
	pool := NewPool(PoolConfig{WorkerCount: 8, Logger: zap.NewNop()})
	first := pool.route(Job{Kind: JobSaveProfile, ProfileID: "g1"})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pool.route(Job{Kind: JobSaveProfile, ProfileID: "g1"}))
	}
}
