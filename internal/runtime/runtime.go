package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	openai "github.com/openai/openai-go/v3"

	"github.com/loqalabs/jarvis/internal/bus"
	"github.com/loqalabs/jarvis/internal/config"
	"github.com/loqalabs/jarvis/internal/conversation"
	"github.com/loqalabs/jarvis/internal/eventstore"
	"github.com/loqalabs/jarvis/internal/llm"
	"github.com/loqalabs/jarvis/internal/natsserver"
	"github.com/loqalabs/jarvis/internal/openaiclient"
	"github.com/loqalabs/jarvis/internal/pipeline"
	"github.com/loqalabs/jarvis/internal/player"
	"github.com/loqalabs/jarvis/internal/stt"
	"github.com/loqalabs/jarvis/internal/tts"
)

// PlayerFactory builds a playback backend for a player mode.
type PlayerFactory func(logger *slog.Logger) (player.Player, error)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	metrics     http.Handler
	store       *eventstore.Store
	bus         *bus.Client
	nats        *natsserver.EmbeddedServer
	players     map[string]PlayerFactory
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		players: map[string]PlayerFactory{},
	}
}

// RegisterPlayer makes an additional player mode available.
func (r *Runtime) RegisterPlayer(mode string, factory PlayerFactory) {
	r.players[mode] = factory
}

// Start wires the assistant and runs it until it finishes or ctx is
// cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	r.metrics = metricsHandler
	defer r.shutdown()

	assistant, err := r.build(ctx)
	if err != nil {
		return err
	}

	if r.cfg.HTTP.Enabled {
		r.startHTTP()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.Bool("loop", r.cfg.Pipeline.Loop))
	return assistant.Run(ctx)
}

func (r *Runtime) build(ctx context.Context) (*pipeline.Assistant, error) {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store

	var publisher pipeline.Publisher
	if r.cfg.Bus.Enabled {
		client, err := r.connectBus(ctx)
		if err != nil {
			return nil, err
		}
		r.bus = client
		publisher = client
	}

	var client openai.Client
	if r.cfg.UsesOpenAI() {
		client, err = openaiclient.New(r.cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
	}

	recognizer, err := stt.New(r.cfg.STT, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}
	generator, err := llm.New(r.cfg.LLM, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	synthesizer, err := tts.New(r.cfg.TTS, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	out, err := r.newPlayer()
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	convo, err := conversation.Load(r.cfg.Conversation.Path, r.cfg.Conversation.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	r.logger.Info("conversation loaded", slog.String("path", convo.Path()), slog.Int("entries", convo.Len()))

	return pipeline.New(r.cfg, pipeline.Dependencies{
		Recognizer:   recognizer,
		Generator:    generator,
		Synthesizer:  synthesizer,
		Player:       out,
		Conversation: convo,
		Journal:      store,
		Publisher:    publisher,
	}, r.logger)
}

func (r *Runtime) connectBus(ctx context.Context) (*bus.Client, error) {
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded nats: %w", err)
		}
		r.nats = srv
		busCfg.Servers = []string{srv.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}
	return client, nil
}

func (r *Runtime) newPlayer() (player.Player, error) {
	switch mode := r.cfg.Player.Mode; mode {
	case "ffplay":
		return player.NewFFplay(r.cfg.Player.Command, r.logger)
	case "none":
		return player.Discard{}, nil
	default:
		factory, ok := r.players[mode]
		if !ok {
			return nil, fmt.Errorf("player mode %q not available in this build", mode)
		}
		return factory(r.logger)
	}
}

func (r *Runtime) startHTTP() {
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", addr))
}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/cycles", r.handleCycles)
	if r.metrics != nil {
		mux.Handle("/metrics", r.metrics)
	}
	return mux
}

func (r *Runtime) shutdown() {
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		r.wg.Wait()
	}
	r.bus.Close()
	r.nats.Shutdown()
	if err := r.store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type cycleView struct {
	ID         string    `json:"id"`
	Device     string    `json:"device,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func (r *Runtime) handleCycles(w http.ResponseWriter, req *http.Request) {
	limit := 20
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	cycles, err := r.store.RecentCycles(req.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]cycleView, 0, len(cycles))
	for _, c := range cycles {
		views = append(views, cycleView{ID: c.ID, Device: c.Device, Outcome: c.Outcome, StartedAt: c.StartedAt, FinishedAt: c.FinishedAt})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}
