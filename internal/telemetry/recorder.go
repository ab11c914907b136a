// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry persists routing decisions and fallback attempts to a
// local SQLite database for offline analysis.
package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/modmesh/internal/message"
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
-- Routing decisions: one row per completed Route call
CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query_id TEXT NOT NULL,
    category TEXT NOT NULL,
    module_type TEXT NOT NULL,
    confidence REAL NOT NULL,
    processing_ms INTEGER NOT NULL,
    fallback_used INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL  -- Unix timestamp
);

CREATE INDEX IF NOT EXISTS idx_decisions_query ON decisions(query_id);
CREATE INDEX IF NOT EXISTS idx_decisions_module ON decisions(module_type);

-- Fallback attempts: origin -> candidate outcomes for diagnostics
CREATE TABLE IF NOT EXISTS fallback_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query_id TEXT NOT NULL,
    origin TEXT NOT NULL,
    candidate TEXT NOT NULL,
    accepted INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fallback_origin ON fallback_attempts(origin);
`

// =============================================================================
// RECORDER
// =============================================================================

// Recorder writes decision telemetry to SQLite. Safe for concurrent use;
// SQLite serializes writes behind a single connection.
type Recorder struct {
	db *sql.DB
}

// Decision is one persisted routing outcome.
type Decision struct {
	QueryID      string
	Category     string
	ModuleType   string
	Confidence   float64
	ProcessingMS int64
	FallbackUsed bool
	RecordedAt   time.Time
}

// Open creates or opens the decision log at path.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// RecordDecision persists one routing outcome. Implements the router's
// Recorder hook.
func (r *Recorder) RecordDecision(queryID string, category message.Category, mt message.ModuleType, confidence float64, processingTime time.Duration, fallbackUsed bool) {
	used := 0
	if fallbackUsed {
		used = 1
	}
	// Telemetry must never fail routing, so write errors are dropped.
	r.db.Exec(
		`INSERT INTO decisions (query_id, category, module_type, confidence, processing_ms, fallback_used, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		queryID, category.String(), mt.String(), confidence,
		processingTime.Milliseconds(), used, time.Now().Unix(),
	)
}

// RecordFallbackAttempt persists one origin→candidate fallback outcome.
func (r *Recorder) RecordFallbackAttempt(queryID string, origin, candidate message.ModuleType, accepted bool) {
	ok := 0
	if accepted {
		ok = 1
	}
	r.db.Exec(
		`INSERT INTO fallback_attempts (query_id, origin, candidate, accepted, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		queryID, origin.String(), candidate.String(), ok, time.Now().Unix(),
	)
}

// Decisions returns the most recent decisions, newest first.
func (r *Recorder) Decisions(limit int) ([]Decision, error) {
	rows, err := r.db.Query(
		`SELECT query_id, category, module_type, confidence, processing_ms, fallback_used, recorded_at
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var used int
		var at int64
		if err := rows.Scan(&d.QueryID, &d.Category, &d.ModuleType, &d.Confidence, &d.ProcessingMS, &used, &at); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.FallbackUsed = used != 0
		d.RecordedAt = time.Unix(at, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

// FallbackSuccessRate returns accepted/attempted for an origin module type.
// Zero attempts yields (0, 0, nil).
func (r *Recorder) FallbackSuccessRate(origin message.ModuleType) (attempts, accepted int, err error) {
	row := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(accepted), 0) FROM fallback_attempts WHERE origin = ?`,
		origin.String())
	if err := row.Scan(&attempts, &accepted); err != nil {
		return 0, 0, fmt.Errorf("failed to query fallback attempts: %w", err)
	}
	return attempts, accepted, nil
}
