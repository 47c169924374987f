// Package notify fans engine notifications out to transport sinks.
package notify

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/models"
)

var (
	notificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_notifications_published_total",
		Help: "Total number of notifications published by type",
	}, []string{"type"})

	notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_notifications_dropped_total",
		Help: "Total number of notifications dropped because the dispatcher queue was full",
	})

	sinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_notification_sink_failures_total",
		Help: "Total number of failed notification deliveries",
	})
)

// Sink receives every published notification.
type Sink interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n models.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

// Dispatcher queues notifications and delivers them to sinks on its own
// goroutine, so publishers never wait on transport I/O.
type Dispatcher struct {
	queue  chan models.Notification
	sinks  []Sink
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(size int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  make(chan models.Notification, size),
		sinks:  sinks,
		logger: logger.Sugar(),
		done:   make(chan struct{}),
	}
}

// Publish queues n. It reports false when the queue is full or closed.
func (d *Dispatcher) Publish(n models.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- n:
		notificationsPublished.WithLabelValues(string(n.Type)).Inc()
		return true
	default:
		notificationsDropped.Inc()
		d.logger.Warnw("Notification dropped, queue full", "type", n.Type)
		return false
	}
}

// Run delivers queued notifications until Close drains the queue.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for n := range d.queue {
		for _, s := range d.sinks {
			if err := s.Deliver(ctx, n); err != nil {
				sinkFailures.Inc()
				d.logger.Errorw("Notification delivery failed", "type", n.Type, "error", err)
			}
		}
	}
}

// Close stops accepting notifications and waits for Run to deliver the rest.
// Run must have been started.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
