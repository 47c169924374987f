// Package engine is the round manager: the single authority that creates,
// advances and ends rounds. Commands, timer expiries and persistence results
// all run as events on one loop, so domain state needs no locks.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/common/clock"
	"github.com/openmohaa/match-server/internal/config"
	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/profile"
	"github.com/openmohaa/match-server/internal/round"
	"github.com/openmohaa/match-server/internal/stats"
	"github.com/openmohaa/match-server/internal/vote"
)

// MapCatalog resolves selectors and spawn points.
type MapCatalog interface {
	Resolve(selector string) []models.MapInfo
	Get(id int) (models.MapInfo, bool)
	Spawn(mapID int, f models.Faction) models.Vec3
	Lobby() models.Vec3
}

// Profiles loads durable records.
type Profiles interface {
	Load(ctx context.Context, id, name string) (*profile.Record, error)
	Lookup(ctx context.Context, id string) (models.Profile, error)
}

// Persister takes persistence jobs without blocking.
type Persister interface {
	EnqueueSave(id string, doc profile.Document) error
	EnqueueArchive(a *models.RoundArchive) error
}

// Publisher accepts outbound notifications without blocking.
type Publisher interface {
	Publish(n models.Notification) bool
}

type Config struct {
	Settings    config.Settings
	Clock       clock.Clock
	Maps        MapCatalog
	Profiles    Profiles
	Persistence Persister
	Notifier    Publisher
	Logger      *zap.Logger
	// NewRoundID and IntN are test seams; both default to random sources.
	NewRoundID func() string
	IntN       func(n int) int
	QueueSize  int
	// LoadTimeout bounds one asynchronous profile load.
	LoadTimeout time.Duration
}

// Engine owns the round, the vote and the participant directory.
type Engine struct {
	cfg    Config
	logger *zap.SugaredLogger

	events chan func()
	done   chan struct{}

	directory *Directory
	machine   *round.Machine
	ballot    *vote.Ballot
	stats     *stats.Aggregator
	records   *profile.Cache
	routes    map[string]Handler

	prepareTimer clock.Timer
	loading      map[string]bool
}

func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 15 * time.Second
	}

	e := &Engine{
		cfg:       cfg,
		logger:    cfg.Logger.Sugar(),
		events:    make(chan func(), cfg.QueueSize),
		done:      make(chan struct{}),
		directory: NewDirectory(),
		records:   profile.NewCache(),
		loading:   make(map[string]bool),
	}
	e.machine = round.NewMachine(round.Config{
		Duration:  cfg.Settings.RoundDuration,
		Clock:     cfg.Clock,
		Directory: e.directory,
		Spawner:   cfg.Maps,
		NewID:     cfg.NewRoundID,
		OnExpire: func(id string) {
			e.post(func() { e.roundExpired(id) })
		},
	})
	e.ballot = vote.NewBallot(vote.Config{
		Duration:       cfg.Settings.VoteDuration,
		MaxNominations: cfg.Settings.MaxNominations,
		Clock:          cfg.Clock,
		Maps:           cfg.Maps,
		IntN:           cfg.IntN,
		OnExpire: func(gen uint64) {
			e.post(func() { e.voteExpired(gen) })
		},
	})
	e.routes = e.buildRoutes()
	return e
}

// Run processes events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Infow("Engine loop started", "roundDuration", e.cfg.Settings.RoundDuration)
	defer close(e.done)
	for {
		select {
		case fn := <-e.events:
			eventQueueDepth.Set(float64(len(e.events)))
			fn()
		case <-ctx.Done():
			e.records.Each(e.save)
			e.logger.Infow("Engine loop stopped", "flushed", e.records.Len())
			return
		}
	}
}

// Done is closed once Run has returned and cached records were queued for saving.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// post queues fn for the loop. It reports false once the loop has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case e.events <- fn:
		return true
	case <-e.done:
		return false
	}
}

// exec runs fn on the loop and waits for its result.
func (e *Engine) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.events <- func() { errc <- fn() }:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call is exec for functions with a result.
func call[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	var out T
	err := e.exec(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// command runs a participant command on the loop and applies the error policy.
func command[T any](ctx context.Context, e *Engine, name, actor string, fn func() (T, error)) (T, error) {
	out, err := call(ctx, e, func() (T, error) {
		out, err := fn()
		e.settle(name, actor, err)
		return out, err
	})
	return out, err
}

// settle records the outcome of a command. Runs on the loop.
func (e *Engine) settle(name, actor string, err error) {
	class := Classify(err)
	commandsHandled.WithLabelValues(name, class.String()).Inc()
	switch class {
	case ClassActor:
		e.logger.Infow("Command rejected", "command", name, "actor", actor, "error", err)
		e.notify(models.NotifyCommandRejected, actor, map[string]string{
			"command": name,
			"error":   err.Error(),
		})
	case ClassOperational:
		e.logger.Errorw("Command failed", "command", name, "actor", actor, "error", err)
	}
}

func (e *Engine) notify(t models.NotificationType, target string, payload any) {
	if e.cfg.Notifier == nil {
		return
	}
	e.cfg.Notifier.Publish(models.Notification{
		Type:      t,
		RoundID:   e.machine.RoundID(),
		Target:    target,
		Payload:   payload,
		Timestamp: e.cfg.Clock.Now(),
	})
}

func (e *Engine) snapshot() models.RoundSnapshot {
	snap, _ := e.machine.Snapshot()
	return snap
}
