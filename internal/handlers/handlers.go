package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/engine"
	"github.com/openmohaa/match-server/internal/models"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// Engine is the round manager's command and query surface.
type Engine interface {
	Connect(ctx context.Context, id, name string) (models.Participant, error)
	Disconnect(ctx context.Context, id string) error
	ChooseFaction(ctx context.Context, id string, f models.Faction) (models.Participant, error)
	CreateSession(ctx context.Context, actor, selector string) (models.RoundSnapshot, error)
	StartSession(ctx context.Context, actor string) (models.RoundSnapshot, error)
	PauseSession(ctx context.Context, actor string, pause bool) (models.RoundSnapshot, error)
	EndSession(ctx context.Context, actor string) (*models.RoundArchive, error)
	AddParticipant(ctx context.Context, actor, id string) (models.PlayerRoundStat, error)
	RemoveParticipant(ctx context.Context, actor, id string) error
	SwapFaction(ctx context.Context, actor, id string, f models.Faction) error
	ApplyStatDelta(ctx context.Context, actor, id, field string, value any) (bool, error)
	RecordHit(ctx context.Context, actor, attacker, victim, weapon string, damage float64) error
	RecordKill(ctx context.Context, actor, killer, victim string, position *models.Vec3) ([]string, error)
	MergeSnapshot(ctx context.Context, actor, id string, partial map[string]any) ([]string, error)
	NominateOrVote(ctx context.Context, id, selector string) (models.Nomination, error)
	ResolveVote(ctx context.Context, actor string) (engine.VoteResolution, error)
	CancelVote(ctx context.Context, actor string) error
	Dispatch(ctx context.Context, name string, cmd engine.Command) (any, error)

	Session(ctx context.Context) (models.RoundSnapshot, error)
	PlayerStat(ctx context.Context, id string) (models.PlayerRoundStat, error)
	Nominations(ctx context.Context) ([]models.Nomination, error)
	Participants(ctx context.Context) ([]models.Participant, error)
	Participant(ctx context.Context, id string) (engine.ParticipantView, error)
	Profile(ctx context.Context, id string) (models.Profile, error)
}

// HistoryService answers archived-round queries.
type HistoryService interface {
	RecentRounds(ctx context.Context, since time.Time, limit int) ([]models.RoundSummary, error)
	PlayerHistory(ctx context.Context, playerID string, since time.Time) (*models.PlayerHistory, error)
}

// LiveState reads values other nodes mirror into shared state.
type LiveState interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
}

// Check is one readiness probe.
type Check func(ctx context.Context) error

// QueueReporter exposes the persistence backlog.
type QueueReporter interface {
	QueueDepth() int
}

type Config struct {
	Engine         Engine
	History        HistoryService
	Live           LiveState
	Hub            *Hub
	Queue          QueueReporter
	Checks         map[string]Check
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Handler struct {
	engine    Engine
	history   HistoryService
	live      LiveState
	hub       *Hub
	queue     QueueReporter
	checks    map[string]Check
	origins   []string
	logger    *zap.SugaredLogger
	validator *validator.Validate
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		engine:    cfg.Engine,
		history:   cfg.History,
		live:      cfg.Live,
		hub:       cfg.Hub,
		queue:     cfg.Queue,
		checks:    cfg.Checks,
		origins:   cfg.AllowedOrigins,
		logger:    cfg.Logger.Sugar(),
		validator: validator.New(),
	}
}

// Routes builds the HTTP surface.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ActorHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger.json", h.Swagger)
	if h.hub != nil {
		r.Get("/ws", h.hub.ServeWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/participants", func(r chi.Router) {
			r.Get("/", h.ListParticipants)
			r.Post("/", h.Connect)
			r.Get("/{id}", h.GetParticipant)
			r.Delete("/{id}", h.Disconnect)
			r.Put("/{id}/faction", h.ChooseFaction)
			r.Get("/{id}/profile", h.GetProfile)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/", h.CreateSession)
			r.Post("/start", h.StartSession)
			r.Post("/pause", h.PauseSession)
			r.Post("/end", h.EndSession)
			r.Post("/roster", h.AddParticipant)
			r.Delete("/roster/{id}", h.RemoveParticipant)
			r.Put("/roster/{id}/faction", h.SwapFaction)
			r.Get("/players/{id}", h.GetPlayerStat)
			r.Post("/players/{id}/stats", h.ApplyStatDelta)
			r.Post("/players/{id}/snapshot", h.MergeSnapshot)
			r.Post("/hits", h.RecordHit)
			r.Post("/kills", h.RecordKill)
		})

		r.Route("/vote", func(r chi.Router) {
			r.Get("/", h.GetNominations)
			r.Post("/", h.NominateOrVote)
			r.Post("/resolve", h.ResolveVote)
			r.Delete("/", h.CancelVote)
		})

		r.Post("/commands/{name}", h.DispatchCommand)
		r.Get("/live/round", h.GetLiveRound)

		r.Route("/history", func(r chi.Router) {
			r.Get("/rounds", h.GetRecentRounds)
			r.Get("/players/{id}", h.GetPlayerHistory)
		})
	})
	return r
}

// decodeJSON reads a size-limited JSON body into dest and validates it.
// Numbers stay json.Number so stat validators see them unconverted.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "validation_failed", "Validation failed: "+err.Error())
		return false
	}
	return true
}
