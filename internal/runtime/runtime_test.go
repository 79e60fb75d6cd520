package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/loqalabs/jarvis/internal/config"
	"github.com/loqalabs/jarvis/internal/eventstore"
	"github.com/loqalabs/jarvis/internal/player"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadyz(t *testing.T) {
	r := New(config.Default(), newLogger())
	srv := httptest.NewServer(r.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", resp.StatusCode)
	}

	r.ready.Store(true)
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", resp.StatusCode)
	}
}

func TestCyclesEndpoint(t *testing.T) {
	ctx := context.Background()
	store, err := eventstore.Open(ctx, config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.BeginCycle(ctx, "c1", "pulse:default"); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}
	if err := store.FinishCycle(ctx, "c1", "replied"); err != nil {
		t.Fatalf("finish cycle: %v", err)
	}

	r := New(config.Default(), newLogger())
	r.store = store
	srv := httptest.NewServer(r.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/cycles?limit=5")
	if err != nil {
		t.Fatalf("get cycles: %v", err)
	}
	defer resp.Body.Close()
	var views []cycleView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].ID != "c1" || views[0].Outcome != "replied" {
		t.Fatalf("unexpected cycles: %+v", views)
	}

	bad, err := http.Get(srv.URL + "/cycles?limit=abc")
	if err != nil {
		t.Fatalf("get cycles: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestNewPlayer(t *testing.T) {
	cfg := config.Default()
	cfg.Player.Mode = "none"
	r := New(cfg, newLogger())
	p, err := r.newPlayer()
	if err != nil {
		t.Fatalf("none player: %v", err)
	}
	if _, ok := p.(player.Discard); !ok {
		t.Fatalf("unexpected player %T", p)
	}

	r.cfg.Player.Mode = "speaker"
	if _, err := r.newPlayer(); err == nil {
		t.Fatal("expected error for unregistered mode")
	}
	r.RegisterPlayer("speaker", func(*slog.Logger) (player.Player, error) { return player.Discard{}, nil })
	if _, err := r.newPlayer(); err != nil {
		t.Fatalf("registered mode: %v", err)
	}
}

func TestSetupTelemetryServesMetrics(t *testing.T) {
	shutdown, handler, err := setupTelemetry(config.Default(), newLogger())
	if err != nil {
		t.Fatalf("setup telemetry: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	if handler == nil {
		t.Fatal("expected metrics handler")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
