// Package store provides the local SQLite cache of finished runs: the
// run_complete snapshot of each run, the run listing, and what-if results.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/weaksignal/internal/model"
)

// ErrNotFound is returned when a run or scenario is not cached.
var ErrNotFound = errors.New("not cached")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// ScenarioRecord is a cached what-if result.
type ScenarioRecord struct {
	Key     string
	Data    json.RawMessage
	SavedAt time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for file-based DBs.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		country TEXT NOT NULL,
		scope TEXT,
		horizon INTEGER,
		domains TEXT,
		signal_count INTEGER,
		status TEXT NOT NULL,
		created_at REAL NOT NULL,
		headline TEXT,
		risk_level TEXT,
		confidence TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scenarios (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		data TEXT NOT NULL,
		saved_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, key)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveSnapshot stores the run_complete payload of a run, replacing any
// earlier one. raw must be a JSON object.
func (s *Store) SaveSnapshot(runID string, raw []byte) error {
	if runID == "" {
		return errors.New("save snapshot: empty run id")
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return fmt.Errorf("save snapshot %s: payload is not a JSON object", runID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO snapshots (run_id, data, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at
	`, runID, string(model.CompactJSON(raw)), time.Now())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", runID, err)
	}
	return nil
}

// Snapshot returns the cached run_complete payload, or ErrNotFound.
func (s *Store) Snapshot(runID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", runID, err)
	}
	return json.RawMessage(data), nil
}

// SaveRun upserts a row of the run listing.
func (s *Store) SaveRun(run model.RunSummary) error {
	if run.ID == "" {
		return errors.New("save run: empty id")
	}
	domains, err := json.Marshal(run.Domains)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	var verdict model.SummaryVerdict
	if run.Assessment != nil {
		verdict = *run.Assessment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO runs (id, country, scope, horizon, domains, signal_count, status, created_at, headline, risk_level, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			country = excluded.country,
			scope = excluded.scope,
			horizon = excluded.horizon,
			domains = excluded.domains,
			signal_count = excluded.signal_count,
			status = excluded.status,
			headline = excluded.headline,
			risk_level = excluded.risk_level,
			confidence = excluded.confidence
	`,
		run.ID, run.Country, run.Scope, run.Horizon, string(domains), run.SignalCount,
		string(run.Status), run.CreatedAt, verdict.Headline, verdict.RiskLevel, verdict.Confidence,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns cached runs newest first. limit <= 0 means no limit.
func (s *Store) ListRuns(limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, country, scope, horizon, domains, signal_count, status, created_at, headline, risk_level, confidence
		FROM runs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var (
			r       model.RunSummary
			scope   sql.NullString
			domains sql.NullString
			status  string
			verdict model.SummaryVerdict
			head    sql.NullString
			level   sql.NullString
			conf    sql.NullString
			horizon sql.NullInt64
			count   sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Country, &scope, &horizon, &domains, &count, &status, &r.CreatedAt, &head, &level, &conf); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Scope = scope.String
		r.Horizon = int(horizon.Int64)
		r.SignalCount = int(count.Int64)
		r.Status = model.RunStatus(status)
		if domains.Valid && domains.String != "" && domains.String != "null" {
			if err := json.Unmarshal([]byte(domains.String), &r.Domains); err != nil {
				return nil, fmt.Errorf("run %s domains: %w", r.ID, err)
			}
		}
		verdict = model.SummaryVerdict{Headline: head.String, RiskLevel: level.String, Confidence: conf.String}
		if verdict != (model.SummaryVerdict{}) {
			r.Assessment = &verdict
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveScenario stores a what-if result under (runID, key).
func (s *Store) SaveScenario(runID, key string, raw []byte) error {
	if runID == "" || key == "" {
		return errors.New("save scenario: empty run id or key")
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("save scenario %s/%s: invalid JSON", runID, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO scenarios (run_id, key, data, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, key) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at
	`, runID, key, string(model.ResultJSON(raw)), time.Now())
	if err != nil {
		return fmt.Errorf("save scenario %s/%s: %w", runID, key, err)
	}
	return nil
}

// Scenario returns one cached what-if result, or ErrNotFound.
func (s *Store) Scenario(runID, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM scenarios WHERE run_id = ? AND key = ?`, runID, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %s/%s: %w", runID, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s/%s: %w", runID, key, err)
	}
	return json.RawMessage(data), nil
}

// Scenarios returns the cached what-if results of a run, oldest first.
func (s *Store) Scenarios(runID string) ([]ScenarioRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT key, data, saved_at FROM scenarios WHERE run_id = ? ORDER BY saved_at, key
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list scenarios %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ScenarioRecord
	for rows.Next() {
		var (
			rec  ScenarioRecord
			data string
		)
		if err := rows.Scan(&rec.Key, &data, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		rec.Data = json.RawMessage(data)
		out = append(out, rec)
	}
	return out, rows.Err()
}
