package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/engine"
	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/notify"
	"github.com/openmohaa/match-server/internal/round"
	"github.com/openmohaa/match-server/internal/stats"
	"github.com/openmohaa/match-server/internal/vote"
)

func newTestHandler(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return New(cfg).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestConnect(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})

	w := do(t, h, http.MethodPost, "/api/v1/participants", `{"id":"a-1","name":"Ace"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var p models.Participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "a-1", p.ID)
	assert.Equal(t, "Ace", p.Name)
}

func TestConnectRejectsBadBodies(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})

	w := do(t, h, http.MethodPost, "/api/v1/participants", `{"id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_body", decodeError(t, w).Code)

	w = do(t, h, http.MethodPost, "/api/v1/participants", `{"name":"Ace"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decodeError(t, w).Code)

	w = do(t, h, http.MethodPut, "/api/v1/participants/a-1/faction", `{"faction":"pirates"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decodeError(t, w).Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not connected", engine.ErrNotConnected, http.StatusNotFound, "not_connected"},
		{"map missing", engine.ErrMapNotFound, http.StatusNotFound, "map_not_found"},
		{"no round", round.ErrNoRound, http.StatusNotFound, "no_round"},
		{"wrapped conflict", fmt.Errorf("create: %w", round.ErrAlreadyRunning), http.StatusConflict, "already_running"},
		{"vote closed", vote.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{"stopped", engine.ErrStopped, http.StatusServiceUnavailable, "stopped"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unmapped", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Config{Engine: &MockEngine{
				CreateSessionFunc: func(ctx context.Context, actor, selector string) (models.RoundSnapshot, error) {
					return models.RoundSnapshot{}, tt.err
				},
			}})
			w := do(t, h, http.MethodPost, "/api/v1/session", `{"selector":"dust"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestUnmappedErrorsHideDetail(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{
		CreateSessionFunc: func(ctx context.Context, actor, selector string) (models.RoundSnapshot, error) {
			return models.RoundSnapshot{}, errors.New("pq: password authentication failed")
		},
	}})
	w := do(t, h, http.MethodPost, "/api/v1/session", `{"selector":"dust"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestAmbiguousSelectorListsCandidates(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{
		CreateSessionFunc: func(ctx context.Context, actor, selector string) (models.RoundSnapshot, error) {
			return models.RoundSnapshot{}, &vote.AmbiguousError{
				Selector:   selector,
				Candidates: []models.MapInfo{{ID: 3, Name: "dust"}, {ID: 7, Name: "dustbowl"}},
			}
		},
	}})
	w := do(t, h, http.MethodPost, "/api/v1/session", `{"selector":"dust"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "ambiguous_selector", resp.Code)
	assert.Equal(t, []int{3, 7}, resp.Candidates)
}

func TestActorHeaderReachesEngine(t *testing.T) {
	var gotActor, gotSelector string
	h := newTestHandler(Config{Engine: &MockEngine{
		CreateSessionFunc: func(ctx context.Context, actor, selector string) (models.RoundSnapshot, error) {
			gotActor, gotSelector = actor, selector
			return models.RoundSnapshot{ID: "round-1", State: models.RoundPreparing}, nil
		},
	}})
	w := do(t, h, http.MethodPost, "/api/v1/session", `{"selector":"sand"}`, ActorHeader, "admin-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", gotActor)
	assert.Equal(t, "sand", gotSelector)
}

func TestEndSession(t *testing.T) {
	mock := &MockEngine{}
	h := newTestHandler(Config{Engine: mock})

	w := do(t, h, http.MethodPost, "/api/v1/session/end", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	mock.EndSessionFunc = func(ctx context.Context, actor string) (*models.RoundArchive, error) {
		return &models.RoundArchive{ID: "round-2", Result: models.RoundResult{Winner: models.FactionAttackers}}, nil
	}
	w = do(t, h, http.MethodPost, "/api/v1/session/end", "")
	require.Equal(t, http.StatusOK, w.Code)
	var archive models.RoundArchive
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &archive))
	assert.Equal(t, "round-2", archive.ID)
}

func TestRecordKillAlwaysReturnsAssistList(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})
	w := do(t, h, http.MethodPost, "/api/v1/session/kills", `{"killer":"a-1","victim":"b-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"assists":[]}`, w.Body.String())
}

func TestApplyStatDeltaKeepsNumbersUnconverted(t *testing.T) {
	var got any
	h := newTestHandler(Config{Engine: &MockEngine{
		ApplyStatDeltaFunc: func(ctx context.Context, actor, id, field string, value any) (bool, error) {
			got = value
			return true, nil
		},
	}})
	w := do(t, h, http.MethodPost, "/api/v1/session/players/a-1/stats", `{"field":"kill","value":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, json.Number("2"), got)
	assert.JSONEq(t, `{"applied":true}`, w.Body.String())
}

func TestApplyStatDeltaMalformedValueNotApplied(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{
		ApplyStatDeltaFunc: func(ctx context.Context, actor, id, field string, value any) (bool, error) {
			f, err := stats.ParseField(field)
			if err != nil {
				return false, err
			}
			return f.Validate(value)
		},
	}})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty string", `{"field":"kill","value":""}`, `{"applied":false}`},
		{"false", `{"field":"kill","value":false}`, `{"applied":false}`},
		{"zero", `{"field":"kill","value":0}`, `{"applied":true}`},
		{"missing value", `{"field":"kill"}`, `{"applied":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/session/players/a-1/stats", tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestGetNominationsEmpty(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})
	w := do(t, h, http.MethodGet, "/api/v1/vote", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestDispatchCommand(t *testing.T) {
	var got engine.Command
	h := newTestHandler(Config{Engine: &MockEngine{
		DispatchFunc: func(ctx context.Context, name string, cmd engine.Command) (any, error) {
			if name != "cancelVote" {
				return nil, fmt.Errorf("%w: %q", engine.ErrUnknownCommand, name)
			}
			got = cmd
			return nil, nil
		},
	}})

	w := do(t, h, http.MethodPost, "/api/v1/commands/cancelVote", `{}`, ActorHeader, "admin-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", got.Actor)

	w = do(t, h, http.MethodPost, "/api/v1/commands/cancelVote", `{"actor":"admin-2"}`, ActorHeader, "admin-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-2", got.Actor)

	w = do(t, h, http.MethodPost, "/api/v1/commands/launchNukes", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_command", decodeError(t, w).Code)
}

func TestReady(t *testing.T) {
	healthy := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	h := newTestHandler(Config{
		Engine: &MockEngine{},
		Queue:  &MockQueue{Depth: 4},
		Checks: map[string]Check{"postgres": healthy, "redis": healthy},
	})
	w := do(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, float64(4), body["queueDepth"])

	h = newTestHandler(Config{
		Engine: &MockEngine{},
		Checks: map[string]Check{"postgres": healthy, "clickhouse": down},
	})
	w = do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"clickhouse":false`)
}

func TestHealthAndSwagger(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/swagger.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc["swagger"])
	assert.Equal(t, "/api/v1", doc["basePath"])
}

func TestGetLiveRound(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})
	w := do(t, h, http.MethodGet, "/api/v1/live/round", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	state := notify.NewSharedState(client, "", time.Minute)

	h = newTestHandler(Config{Engine: &MockEngine{}, Live: state})
	w = do(t, h, http.MethodGet, "/api/v1/live/round", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.RoundSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.RoundNone, snap.State)

	require.NoError(t, state.Set(context.Background(), notify.RoundKey, models.RoundSnapshot{
		ID:    "round-9",
		Map:   models.MapInfo{ID: 3, Name: "dust"},
		State: models.RoundActive,
	}))
	w = do(t, h, http.MethodGet, "/api/v1/live/round", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "round-9", snap.ID)
	assert.Equal(t, models.RoundActive, snap.State)
}

func TestHistory(t *testing.T) {
	h := newTestHandler(Config{Engine: &MockEngine{}})
	w := do(t, h, http.MethodGet, "/api/v1/history/rounds", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_history", decodeError(t, w).Code)

	var gotLimit int
	var gotSince time.Time
	hist := &MockHistoryService{
		RecentRoundsFunc: func(ctx context.Context, since time.Time, limit int) ([]models.RoundSummary, error) {
			gotLimit, gotSince = limit, since
			return nil, nil
		},
	}
	h = newTestHandler(Config{Engine: &MockEngine{}, History: hist})

	w = do(t, h, http.MethodGet, "/api/v1/history/rounds?limit=10000&days=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, 500, gotLimit)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -2), gotSince, time.Minute)

	w = do(t, h, http.MethodGet, "/api/v1/history/players/a-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ph models.PlayerHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ph))
	assert.Equal(t, "a-1", ph.PlayerID)
}

func TestHubDeliverTargetsParticipant(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	a := newWSClient(nil, "a-1")
	b := newWSClient(nil, "b-1")
	hub.add(a)
	hub.add(b)

	require.NoError(t, hub.Deliver(context.Background(), models.Notification{Type: models.NotifyCommandRejected, Target: "a-1"}))
	require.NoError(t, hub.Deliver(context.Background(), models.Notification{Type: models.NotifyRosterChanged}))

	assert.Len(t, a.send, 2)
	assert.Len(t, b.send, 1)
	var n models.Notification
	require.NoError(t, json.Unmarshal(<-b.send, &n))
	assert.Equal(t, models.NotifyRosterChanged, n.Type)
	hub.Close()
	assert.Zero(t, hub.Subscribers())
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	slow := newWSClient(nil, "")
	hub.add(slow)
	for i := 0; i < wsSendBuffer; i++ {
		require.NoError(t, hub.Deliver(context.Background(), models.Notification{Type: models.NotifyStatUpdated}))
	}
	assert.Equal(t, 1, hub.Subscribers())

	require.NoError(t, hub.Deliver(context.Background(), models.Notification{Type: models.NotifyStatUpdated}))
	assert.Zero(t, hub.Subscribers())
	select {
	case <-slow.done:
	default:
		t.Fatal("slow subscriber was not closed")
	}
}

func TestServeWS(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	srv := httptest.NewServer(newTestHandler(Config{Engine: &MockEngine{}, Hub: hub}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?participant=a-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), models.Notification{Type: models.NotifyCommandRejected, Target: "b-1"}))
	require.NoError(t, hub.Deliver(context.Background(), models.Notification{Type: models.NotifySessionStarted, RoundID: "round-1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var n models.Notification
	require.NoError(t, json.Unmarshal(msg, &n))
	assert.Equal(t, models.NotifySessionStarted, n.Type)
	assert.Equal(t, "round-1", n.RoundID)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
