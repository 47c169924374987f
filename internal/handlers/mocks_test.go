package handlers

import (
	"context"
	"time"

	"github.com/openmohaa/match-server/internal/engine"
	"github.com/openmohaa/match-server/internal/models"
)

// MockEngine overrides the calls a test cares about. Anything else hits the
// nil embedded interface and panics.
type MockEngine struct {
	Engine
	ConnectFunc        func(ctx context.Context, id, name string) (models.Participant, error)
	CreateSessionFunc  func(ctx context.Context, actor, selector string) (models.RoundSnapshot, error)
	EndSessionFunc     func(ctx context.Context, actor string) (*models.RoundArchive, error)
	RecordKillFunc     func(ctx context.Context, actor, killer, victim string, position *models.Vec3) ([]string, error)
	ApplyStatDeltaFunc func(ctx context.Context, actor, id, field string, value any) (bool, error)
	NominationsFunc    func(ctx context.Context) ([]models.Nomination, error)
	DispatchFunc       func(ctx context.Context, name string, cmd engine.Command) (any, error)
	SessionFunc        func(ctx context.Context) (models.RoundSnapshot, error)
}

func (m *MockEngine) Connect(ctx context.Context, id, name string) (models.Participant, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, id, name)
	}
	return models.Participant{ID: id, Name: name, Faction: models.FactionSpectators}, nil
}

func (m *MockEngine) CreateSession(ctx context.Context, actor, selector string) (models.RoundSnapshot, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, actor, selector)
	}
	return models.RoundSnapshot{ID: "round-1", State: models.RoundPreparing}, nil
}

func (m *MockEngine) EndSession(ctx context.Context, actor string) (*models.RoundArchive, error) {
	if m.EndSessionFunc != nil {
		return m.EndSessionFunc(ctx, actor)
	}
	return nil, nil
}

func (m *MockEngine) RecordKill(ctx context.Context, actor, killer, victim string, position *models.Vec3) ([]string, error) {
	if m.RecordKillFunc != nil {
		return m.RecordKillFunc(ctx, actor, killer, victim, position)
	}
	return nil, nil
}

func (m *MockEngine) ApplyStatDelta(ctx context.Context, actor, id, field string, value any) (bool, error) {
	if m.ApplyStatDeltaFunc != nil {
		return m.ApplyStatDeltaFunc(ctx, actor, id, field, value)
	}
	return true, nil
}

func (m *MockEngine) Nominations(ctx context.Context) ([]models.Nomination, error) {
	if m.NominationsFunc != nil {
		return m.NominationsFunc(ctx)
	}
	return nil, nil
}

func (m *MockEngine) Dispatch(ctx context.Context, name string, cmd engine.Command) (any, error) {
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, name, cmd)
	}
	return nil, nil
}

func (m *MockEngine) Session(ctx context.Context) (models.RoundSnapshot, error) {
	if m.SessionFunc != nil {
		return m.SessionFunc(ctx)
	}
	return models.RoundSnapshot{State: models.RoundNone}, nil
}

// MockHistoryService
type MockHistoryService struct {
	RecentRoundsFunc  func(ctx context.Context, since time.Time, limit int) ([]models.RoundSummary, error)
	PlayerHistoryFunc func(ctx context.Context, playerID string, since time.Time) (*models.PlayerHistory, error)
}

func (m *MockHistoryService) RecentRounds(ctx context.Context, since time.Time, limit int) ([]models.RoundSummary, error) {
	if m.RecentRoundsFunc != nil {
		return m.RecentRoundsFunc(ctx, since, limit)
	}
	return nil, nil
}

func (m *MockHistoryService) PlayerHistory(ctx context.Context, playerID string, since time.Time) (*models.PlayerHistory, error) {
	if m.PlayerHistoryFunc != nil {
		return m.PlayerHistoryFunc(ctx, playerID, since)
	}
	return &models.PlayerHistory{PlayerID: playerID, Since: since}, nil
}

type MockQueue struct{ Depth int }

func (m *MockQueue) QueueDepth() int { return m.Depth }
