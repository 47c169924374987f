package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/common/clock"
	"github.com/openmohaa/match-server/internal/config"
	"github.com/openmohaa/match-server/internal/models"
)

// GroupResolver looks up an identity's access group.
type GroupResolver interface {
	AccessGroup(ctx context.Context, id string) (string, error)
}

type ServiceConfig struct {
	Store    Store
	Settings config.Settings
	Clock    clock.Clock
	Groups   GroupResolver
	Logger   *zap.Logger
	// Backoff is the delay unit between load attempts; attempt n waits n*Backoff.
	Backoff time.Duration
}

// Service loads and saves records. It is safe for concurrent use; the records
// it returns are not.
type Service struct {
	store    Store
	settings config.Settings
	clock    clock.Clock
	groups   GroupResolver
	logger   *zap.SugaredLogger
	backoff  time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &Service{
		store:    cfg.Store,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		groups:   cfg.Groups,
		logger:   cfg.Logger.Sugar(),
		backoff:  cfg.Backoff,
	}
}

// Load returns the stored record for id, creating and persisting a default one
// when none exists. Transient read failures are retried; a record is only
// created on a definitive miss.
func (s *Service) Load(ctx context.Context, id, name string) (*Record, error) {
	doc, err := s.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return s.create(ctx, id, name)
	}
	if err != nil {
		return nil, err
	}

	p, err := doc.ToProfile()
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", id, err)
	}
	rec := newRecord(p, s.settings)
	rec.Rename(name, s.clock.Now())
	if group := s.lookupGroup(ctx, id); group != "" {
		rec.SetAccessGroup(group)
	}
	return rec, nil
}

// Lookup reads a stored profile without creating one.
func (s *Service) Lookup(ctx context.Context, id string) (models.Profile, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return models.Profile{}, err
	}
	p, err := doc.ToProfile()
	if err != nil {
		return models.Profile{}, fmt.Errorf("lookup profile %s: %w", id, err)
	}
	return *p, nil
}

func (s *Service) get(ctx context.Context, id string) (Document, error) {
	attempts := s.settings.LoadAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, err := s.store.Get(ctx, id)
		if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupted) {
			return doc, err
		}
		lastErr = err
		s.logger.Warnw("Profile read failed", "id", id, "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return nil, fmt.Errorf("load profile %s after %d attempts: %w", id, attempts, lastErr)
}

func (s *Service) create(ctx context.Context, id, name string) (*Record, error) {
	now := s.clock.Now()
	fresh, err := FromProfile(defaultProfile(id, name, s.lookupGroup(ctx, id), now))
	if err != nil {
		return nil, err
	}

	// Another writer may have created the document since the read; keep theirs.
	stored := fresh
	err = s.store.Upsert(ctx, id, func(existing Document) Document {
		if existing != nil {
			stored = existing
			return existing
		}
		return fresh
	})
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w", id, err)
	}

	p, err := stored.ToProfile()
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w", id, err)
	}
	s.logger.Infow("Created profile", "id", id, "name", name)
	rec := newRecord(p, s.settings)
	rec.Rename(name, now)
	return rec, nil
}

func (s *Service) lookupGroup(ctx context.Context, id string) string {
	if s.groups == nil {
		return ""
	}
	group, err := s.groups.AccessGroup(ctx, id)
	if err != nil {
		s.logger.Warnw("Access group lookup failed", "id", id, "error", err)
		return ""
	}
	return group
}

// Save writes the record with a diff-merge upsert.
func (s *Service) Save(ctx context.Context, rec *Record) error {
	doc, err := rec.Document()
	if err != nil {
		return err
	}
	return s.SaveDocument(ctx, rec.ID(), doc)
}

// SaveDocument upserts a document captured earlier with Record.Document.
func (s *Service) SaveDocument(ctx context.Context, id string, doc Document) error {
	if err := s.store.Upsert(ctx, id, Overlay(doc)); err != nil {
		return fmt.Errorf("save profile %s: %w", id, err)
	}
	return nil
}

// Settings returns the progression settings records are built with.
func (s *Service) Settings() config.Settings {
	return s.settings
}
