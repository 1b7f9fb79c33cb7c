// Package sqlite provides the durable tick and alert log backing the
// recompute pipeline. All access is serialized through a single mutex:
// the ingest goroutine and the recompute cycle share one store instance
// and the underlying connection is not safe for uncoordinated use.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pairwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrWrite marks a storage write failure. Callers on the ingest path treat it
// as non-fatal: the tick is dropped and the loop continues.
var ErrWrite = errors.New("store write failed")

// Store is the append-only tick and alert log.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database at path, enables WAL mode and applies
// the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single connection: every operation goes through the store mutex anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			size   REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts);

		CREATE TABLE IF NOT EXISTS alerts (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			ts       INTEGER NOT NULL,
			pair_key TEXT    NOT NULL,
			kind     TEXT    NOT NULL,
			message  TEXT    NOT NULL,
			value    REAL    NOT NULL
		);
	`)
	return err
}

// AppendTick appends a single tick. No deduplication or ordering is enforced;
// out-of-order and duplicate timestamps are accepted as-is.
func (s *Store) AppendTick(t model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO ticks (symbol, ts, price, size) VALUES (?, ?, ?, ?)`,
		t.Symbol, t.TS.UnixMilli(), t.Price, t.Size,
	)
	if err != nil {
		return fmt.Errorf("%w: insert tick: %v", ErrWrite, err)
	}
	return nil
}

// QueryTicks returns ticks for symbol within the lookback window, ordered by
// timestamp ascending. Returns an empty slice when nothing matches.
func (s *Store) QueryTicks(symbol string, lookback time.Duration) ([]model.Tick, error) {
	cutoff := time.Now().UTC().Add(-lookback).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT symbol, ts, price, size
		FROM ticks
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var tsMs int64
		if err := rows.Scan(&t.Symbol, &tsMs, &t.Price, &t.Size); err != nil {
			return nil, fmt.Errorf("sqlite scan tick: %w", err)
		}
		t.TS = time.UnixMilli(tsMs).UTC()
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// AppendAlert appends an alert and assigns its ID.
func (s *Store) AppendAlert(a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO alerts (ts, pair_key, kind, message, value) VALUES (?, ?, ?, ?, ?)`,
		a.TS.UnixMilli(), a.PairKey, string(a.Kind), a.Message, a.Value,
	)
	if err != nil {
		return fmt.Errorf("%w: insert alert: %v", ErrWrite, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite alert id: %w", err)
	}
	a.ID = id
	return nil
}

// QueryAlerts returns up to limit alerts, most recent first.
func (s *Store) QueryAlerts(limit int) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, ts, pair_key, kind, message, value
		FROM alerts
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var tsMs int64
		var kind string
		if err := rows.Scan(&a.ID, &tsMs, &a.PairKey, &kind, &a.Message, &a.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan alert: %w", err)
		}
		a.TS = time.UnixMilli(tsMs).UTC()
		a.Kind = model.AlertKind(kind)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Clear atomically empties both the tick and alert tables.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite clear: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM ticks`); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite clear ticks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM alerts`); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite clear alerts: %w", err)
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
