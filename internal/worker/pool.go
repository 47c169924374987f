// Package worker runs persistence off the engine loop:
// - profile saves with bounded retry
// - batched round archive inserts into ClickHouse
// - graceful shutdown that drains the queue
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/profile"
	"github.com/openmohaa/match-server/internal/stats"
)

// Prometheus metrics
var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_persistence_jobs_enqueued_total",
		Help: "Total number of persistence jobs enqueued",
	}, []string{"kind"})

	jobsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_persistence_jobs_succeeded_total",
		Help: "Total number of persistence jobs completed",
	}, []string{"kind"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_persistence_jobs_failed_total",
		Help: "Total number of persistence jobs that failed after retries",
	}, []string{"kind"})

	jobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_persistence_jobs_dropped_total",
		Help: "Total number of persistence jobs dropped because the queue was full or closed",
	}, []string{"kind"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchd_persistence_queue_depth",
		Help: "Current depth of the persistence queue",
	})

	batchInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchd_archive_batch_duration_seconds",
		Help:    "Duration of round archive batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)

// ErrQueueFull is reported when a job could not be enqueued.
var ErrQueueFull = errors.New("persistence queue full")

// ErrPoolStopped is reported for jobs offered after Stop.
var ErrPoolStopped = errors.New("persistence pool stopped")

// JobKind selects how a job is persisted.
type JobKind string

const (
	JobSaveProfile  JobKind = "profile"
	JobArchiveRound JobKind = "archive"
)

// Job is a unit of work for the pool
type Job struct {
	Kind      JobKind
	ProfileID string
	Document  profile.Document
	Archive   *models.RoundArchive
	Timestamp time.Time
}

// Failure describes a job that could not be persisted.
type Failure struct {
	Job Job
	Err error
}

// ProfileSaver writes profile documents.
type ProfileSaver interface {
	SaveDocument(ctx context.Context, id string, doc profile.Document) error
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	SaveAttempts  int
	RetryBackoff  time.Duration
	SaveTimeout   time.Duration
	ClickHouse    driver.Conn
	Profiles      ProfileSaver
	Logger        *zap.Logger
	// OnFailure is called from worker goroutines.
	OnFailure func(Failure)
}

// Pool manages the persistence workers. Every job is routed to one worker
// queue by key, so saves for a profile are applied in the order they were
// enqueued.
type Pool struct {
	config PoolConfig
	queues []chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnFailure == nil {
		cfg.OnFailure = func(Failure) {}
	}

	perWorker := cfg.QueueSize / cfg.WorkerCount
	if perWorker < 1 {
		perWorker = 1
	}
	queues := make([]chan Job, cfg.WorkerCount)
	for i := range queues {
		queues[i] = make(chan Job, perWorker)
	}

	return &Pool{
		config: cfg,
		queues: queues,
		logger: cfg.Logger.Sugar(),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop closes the queue, waits for workers to drain it and flush their
// batches, then releases the pool context.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("Worker pool stopped")
}

// EnqueueSave queues a profile save. It never blocks.
func (p *Pool) EnqueueSave(id string, doc profile.Document) error {
	return p.enqueue(Job{Kind: JobSaveProfile, ProfileID: id, Document: doc, Timestamp: time.Now()})
}

// EnqueueArchive queues a concluded round for the ClickHouse archive. It
// never blocks.
func (p *Pool) EnqueueArchive(a *models.RoundArchive) error {
	return p.enqueue(Job{Kind: JobArchiveRound, Archive: a, Timestamp: time.Now()})
}

func (p *Pool) enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		jobsDropped.WithLabelValues(string(job.Kind)).Inc()
		p.logger.Warnw("Dropping job, pool stopped", "kind", job.Kind, "profile", job.ProfileID)
		return ErrPoolStopped
	}

	q := p.queues[p.route(job)]
	select {
	case q <- job:
		jobsEnqueued.WithLabelValues(string(job.Kind)).Inc()
		return nil
	default:
		jobsDropped.WithLabelValues(string(job.Kind)).Inc()
		p.logger.Errorw("Dropping job, queue full", "kind", job.Kind, "profile", job.ProfileID, "queueSize", cap(q))
		return ErrQueueFull
	}
}

// route picks the worker queue for a job: profile saves by id, archives by
// round id.
func (p *Pool) route(job Job) int {
	key := job.ProfileID
	if job.Kind == JobArchiveRound && job.Archive != nil {
		key = job.Archive.ID
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	depth := 0
	for _, q := range p.queues {
		depth += len(q)
	}
	return depth
}

// worker saves profiles as they arrive and batches archives
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	queue := p.queues[id]
	batch := make([]Job, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		start := time.Now()
		if err := p.processArchiveBatch(batch); err != nil {
			p.logger.Errorw("Archive batch failed",
				"worker", id,
				"batchSize", len(batch),
				"error", err,
			)
			jobsFailed.WithLabelValues(string(JobArchiveRound)).Add(float64(len(batch)))
			for _, job := range batch {
				p.config.OnFailure(Failure{Job: job, Err: err})
			}
		} else {
			p.logger.Infow("Archive batch stored", "worker", id, "batchSize", len(batch), "duration", time.Since(start))
			jobsSucceeded.WithLabelValues(string(JobArchiveRound)).Add(float64(len(batch)))
		}
		batchInsertDuration.Observe(time.Since(start).Seconds())

		batch = batch[:0]
	}

	for {
		select {
		case job, ok := <-queue:
			if !ok {
				flush()
				return
			}
			switch job.Kind {
			case JobSaveProfile:
				p.saveProfile(id, job)
			case JobArchiveRound:
				batch = append(batch, job)
				if len(batch) >= p.config.BatchSize {
					flush()
				}
			default:
				p.logger.Errorw("Unknown job kind", "worker", id, "kind", job.Kind)
			}

		case <-ticker.C:
			flush()

		case <-p.ctx.Done():
			flush()
			return
		}
	}
}

// saveProfile retries with linear backoff. A final failure is logged, counted
// and reported; it never reaches the engine loop as an error.
func (p *Pool) saveProfile(worker int, job Job) {
	var err error
	for attempt := 1; attempt <= p.config.SaveAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.SaveTimeout)
		err = p.config.Profiles.SaveDocument(ctx, job.ProfileID, job.Document)
		cancel()
		if err == nil {
			jobsSucceeded.WithLabelValues(string(JobSaveProfile)).Inc()
			return
		}
		if errors.Is(err, profile.ErrCorrupted) {
			break
		}
		p.logger.Warnw("Profile save failed", "worker", worker, "profile", job.ProfileID, "attempt", attempt, "error", err)
		if attempt < p.config.SaveAttempts {
			time.Sleep(time.Duration(attempt) * p.config.RetryBackoff)
		}
	}

	p.logger.Errorw("Profile save abandoned", "worker", worker, "profile", job.ProfileID, "error", err)
	jobsFailed.WithLabelValues(string(JobSaveProfile)).Inc()
	p.config.OnFailure(Failure{Job: job, Err: err})
}

// processArchiveBatch writes rounds and their player rows in two batches
func (p *Pool) processArchiveBatch(batch []Job) error {
	if p.config.ClickHouse == nil {
		return fmt.Errorf("clickhouse not configured")
	}
	ctx := context.Background()

	rounds, err := p.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO matchd.rounds (
			round_id, map_id, map_name, started_at, ended_at, winner, draw, players
		)
	`)
	if err != nil {
		return err
	}
	players, err := p.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO matchd.round_players (
			round_id, ended_at, player_id, player_name, faction, outcome,
			kills, deaths, assists, shots_fired, shots_hit, accuracy,
			damage_dealt, damage_received
		)
	`)
	if err != nil {
		return err
	}

	// A row that cannot be appended fails the whole batch so every job in it
	// is reported.
	abort := func(err error) error {
		_ = rounds.Abort()
		_ = players.Abort()
		return err
	}
	for _, job := range batch {
		a := job.Archive
		if a == nil {
			continue
		}
		if err := rounds.Append(roundRow(a)...); err != nil {
			return abort(fmt.Errorf("append round %s: %w", a.ID, err))
		}
		for _, s := range a.Players {
			if err := players.Append(playerRow(a, s)...); err != nil {
				return abort(fmt.Errorf("append round %s player %s: %w", a.ID, s.ID, err))
			}
		}
	}

	if err := rounds.Send(); err != nil {
		p.logger.Errorw("Failed to send rounds batch to ClickHouse", "error", err, "batchSize", len(batch))
		return err
	}
	if err := players.Send(); err != nil {
		p.logger.Errorw("Failed to send round players batch to ClickHouse", "error", err, "batchSize", len(batch))
		return err
	}
	return nil
}

// roundRow matches the matchd.rounds insert column order.
func roundRow(a *models.RoundArchive) []any {
	started := a.StartedAt
	if started.IsZero() {
		started = a.EndedAt
	}
	return []any{
		a.ID,
		uint32(a.Map.ID),
		a.Map.Name,
		started,
		a.EndedAt,
		string(a.Result.Winner),
		a.Result.Draw,
		uint16(len(a.Players)),
	}
}

// playerRow matches the matchd.round_players insert column order.
func playerRow(a *models.RoundArchive, s models.PlayerRoundStat) []any {
	return []any{
		a.ID,
		a.EndedAt,
		s.ID,
		s.Name,
		string(s.Faction),
		string(a.Result.OutcomeFor(s.Faction)),
		count(s.Kill),
		count(s.Death),
		count(s.Assist),
		count(s.ShotsFired),
		count(s.ShotsHit),
		s.Accuracy,
		damage(s.DamageDealt),
		damage(s.DamageReceived),
	}
}

// count applies the lifetime rounding policy and saturates at UInt32.
func count(v float64) uint32 {
	n := stats.Count(v)
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func damage(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(p.QueueDepth()))
		case <-p.ctx.Done():
			return
		}
	}
}
