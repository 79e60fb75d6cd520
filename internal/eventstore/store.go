package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/jarvis/internal/config"
	_ "modernc.org/sqlite"
)

// Cycle is one record→reply pass of the assistant.
type Cycle struct {
	ID         string
	Device     string
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Event is a timeline entry within a cycle.
type Event struct {
	ID        int64
	CycleID   string
	TraceID   string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Store keeps the cycle timeline in SQLite. In ephemeral mode it has no
// database and every write is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store. Session retention clears previous runs;
// persistent retention prunes by age and cycle count.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log.With(slog.String("component", "eventstore")), clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.RetentionMode == "session" {
		if _, err := db.ExecContext(ctx, `DELETE FROM cycles`); err != nil {
			db.Close()
			return nil, fmt.Errorf("reset session timeline: %w", err)
		}
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}
	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			s.log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id TEXT PRIMARY KEY,
    device TEXT,
    outcome TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id TEXT NOT NULL,
    trace_id TEXT,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(cycle_id) REFERENCES cycles(cycle_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_cycle_created ON events(cycle_id, created_at);
CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) enabled() bool {
	return s != nil && s.db != nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if !s.enabled() {
		return nil
	}
	return s.db.Close()
}

// BeginCycle inserts the cycle row events hang off.
func (s *Store) BeginCycle(ctx context.Context, cycleID, device string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles(cycle_id, device, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(cycle_id) DO UPDATE SET device=excluded.device`,
		cycleID, device, s.clock().UTC())
	return err
}

// FinishCycle stamps the outcome of a cycle.
func (s *Store) FinishCycle(ctx context.Context, cycleID, outcome string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET outcome = ?, finished_at = ? WHERE cycle_id = ?`,
		outcome, s.clock().UTC(), cycleID)
	return err
}

// Append writes an event into the store.
func (s *Store) Append(ctx context.Context, evt Event) error {
	if !s.enabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(cycle_id, trace_id, event_type, payload, created_at) VALUES(?, ?, ?, ?, ?)`,
		evt.CycleID, evt.TraceID, evt.Type, evt.Payload, evt.CreatedAt)
	return err
}

// AppendJSON encodes payload and appends it as an event of type typ.
func (s *Store) AppendJSON(ctx context.Context, cycleID, traceID, typ string, payload any) error {
	if !s.enabled() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return s.Append(ctx, Event{CycleID: cycleID, TraceID: traceID, Type: typ, Payload: data})
}

// Events returns up to limit events of a cycle in insertion order.
func (s *Store) Events(ctx context.Context, cycleID string, limit int) ([]Event, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_id, trace_id, event_type, payload, created_at
		 FROM events WHERE cycle_id = ? ORDER BY id ASC LIMIT ?`, cycleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			traceID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CycleID, &traceID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TraceID = traceID.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentCycles lists the newest cycles first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle_id, device, outcome, started_at, finished_at
		 FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var (
			c        Cycle
			device   sql.NullString
			outcome  sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&c.ID, &device, &outcome, &c.StartedAt, &finished); err != nil {
			return nil, err
		}
		c.Device, c.Outcome = device.String, outcome.String
		if finished.Valid {
			c.FinishedAt = finished.Time
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// Prune applies age and count retention to persistent stores.
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.enabled() || s.cfg.RetentionMode != "persistent" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxCycles > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM cycles WHERE cycle_id IN (
			SELECT cycle_id FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxCycles); err != nil {
			return err
		}
	}
	return tx.Commit()
}
