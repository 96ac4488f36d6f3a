package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/fmrank/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL,
		candidates INTEGER NOT NULL,
		facts INTEGER NOT NULL,
		k INTEGER NOT NULL,
		took_ms INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);

	CREATE TABLE IF NOT EXISTS prediction_results (
		prediction_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		task INTEGER NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (prediction_id, position),
		FOREIGN KEY (prediction_id) REFERENCES predictions(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordPrediction inserts a prediction and its ranked results in one transaction.
func (s *SQLiteStorage) RecordPrediction(ctx context.Context, rec *PredictionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO predictions (id, handle, candidates, facts, k, took_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Handle, rec.Candidates, rec.Facts, rec.K, rec.TookMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO prediction_results (prediction_id, position, task, score) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range rec.Results {
		if _, err := stmt.ExecContext(ctx, rec.ID, i, c.Task, c.Score); err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetPrediction returns a prediction by ID.
func (s *SQLiteStorage) GetPrediction(ctx context.Context, id string) (*PredictionRecord, error) {
	var rec PredictionRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, candidates, facts, k, took_ms, created_at
		 FROM predictions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Handle, &rec.Candidates, &rec.Facts, &rec.K, &rec.TookMs, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prediction not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if rec.Results, err = s.results(ctx, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListPredictions returns the most recent predictions first, with offset and limit.
func (s *SQLiteStorage) ListPredictions(ctx context.Context, offset, limit int) ([]*PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handle, candidates, facts, k, took_ms, created_at
		 FROM predictions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*PredictionRecord
	for rows.Next() {
		var rec PredictionRecord
		if err := rows.Scan(&rec.ID, &rec.Handle, &rec.Candidates, &rec.Facts, &rec.K, &rec.TookMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Results, err = s.results(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *SQLiteStorage) results(ctx context.Context, id string) (models.RankedResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task, score FROM prediction_results WHERE prediction_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := models.RankedResult{}
	for rows.Next() {
		var c models.ScoredCandidate
		if err := rows.Scan(&c.Task, &c.Score); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountPredictions returns the total number of recorded predictions.
func (s *SQLiteStorage) CountPredictions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count)
	return count, err
}

// DiskUsageBytes returns the size of the database file plus its WAL and shared-memory files.
func (s *SQLiteStorage) DiskUsageBytes() int64 {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
