// Package store keeps the local review history of predictions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// PredictionRecord is one reviewed prediction.
type PredictionRecord struct {
	ID         int64     `json:"id" yaml:"id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	SessionID  string    `json:"session_id" yaml:"session_id"`
	User       string    `json:"user,omitempty" yaml:"user,omitempty"`
	Filename   string    `json:"filename" yaml:"filename"`
	Label      string    `json:"label" yaml:"label"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	Tier       string    `json:"tier" yaml:"tier"`
	Matches    int       `json:"matches" yaml:"matches"`
}

// ListOptions narrows ListPredictions. Zero values mean no filter.
type ListOptions struct {
	Label string
	Limit int
}

type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS predictions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_unix_ms INTEGER NOT NULL,
  session_id TEXT NOT NULL DEFAULT '',
  user_name TEXT NOT NULL DEFAULT '',
  filename TEXT NOT NULL,
  label TEXT NOT NULL,
  confidence REAL NOT NULL,
  tier TEXT NOT NULL,
  matches INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_predictions_label ON predictions(label);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// RecordPrediction stores rec and returns its id. A zero CreatedAt is
// stamped with the current time.
func (s *SQLiteStore) RecordPrediction(ctx context.Context, rec PredictionRecord) (int64, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(rec.Filename) == "" {
		return 0, errors.New("prediction filename is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	res, err := db.ExecContext(
		ctx,
		`INSERT INTO predictions(created_unix_ms, session_id, user_name, filename, label, confidence, tier, matches)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.UnixMilli(),
		rec.SessionID,
		rec.User,
		rec.Filename,
		rec.Label,
		rec.Confidence,
		defaultIfEmpty(rec.Tier, "unknown_label"),
		rec.Matches,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListPredictions returns records newest first.
func (s *SQLiteStore) ListPredictions(ctx context.Context, opts ListOptions) ([]PredictionRecord, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, created_unix_ms, session_id, user_name, filename, label, confidence, tier, matches FROM predictions`
	var args []any
	if label := strings.TrimSpace(opts.Label); label != "" {
		query += ` WHERE label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY created_unix_ms DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var createdMS int64
		if err := rows.Scan(&rec.ID, &createdMS, &rec.SessionID, &rec.User, &rec.Filename, &rec.Label, &rec.Confidence, &rec.Tier, &rec.Matches); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClearPredictions deletes every record and returns how many were removed.
func (s *SQLiteStore) ClearPredictions(ctx context.Context) (int64, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM predictions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) ensureDB(ctx context.Context) (*sql.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite db not initialized")
	}
	return s.db, nil
}

func defaultIfEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
