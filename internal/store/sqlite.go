package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex // serializes writers to avoid SQLITE_BUSY
	closed bool
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interview_sessions (
		session_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		mult_questions INTEGER NOT NULL DEFAULT 0,
		div_questions INTEGER NOT NULL DEFAULT 0,
		messages_json TEXT NOT NULL,
		report_json TEXT,
		snapshot_at TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_updated ON interview_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Name returns the backend name.
func (s *SQLiteStore) Name() string {
	return BackendSQLite
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSnapshot upserts the session row, retrying on SQLITE_BUSY.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, rec *domain.SessionRecord) (string, error) {
	if rec == nil || rec.SessionID == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return "", fmt.Errorf("marshal messages: %w", err)
	}
	var reportJSON any
	if rec.Report != nil {
		data, err := json.Marshal(rec.Report)
		if err != nil {
			return "", fmt.Errorf("marshal report: %w", err)
		}
		reportJSON = string(data)
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `
		INSERT INTO interview_sessions (
			session_id, phase, mult_questions, div_questions,
			messages_json, report_json, snapshot_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			phase = excluded.phase,
			mult_questions = excluded.mult_questions,
			div_questions = excluded.div_questions,
			messages_json = excluded.messages_json,
			report_json = excluded.report_json,
			snapshot_at = excluded.snapshot_at,
			updated_at = excluded.updated_at`

	err = shared.WithSQLiteRetry(ctx, shared.DefaultRetryPolicy, "save snapshot", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrStorageClosed
		}
		_, err := s.db.ExecContext(ctx, query,
			rec.SessionID, rec.Phase, rec.MultQuestions, rec.DivQuestions,
			string(messagesJSON), reportJSON, rec.Timestamp,
			created.Unix(), time.Now().Unix(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upsert session %s: %w", rec.SessionID, err)
	}

	return fmt.Sprintf("sqlite://%s#%s", s.path, rec.SessionID), nil
}

// LoadSnapshot reads the latest snapshot for sessionID.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	query := `
		SELECT session_id, phase, mult_questions, div_questions,
		       messages_json, report_json, snapshot_at, created_at
		FROM interview_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var rec domain.SessionRecord
	var messagesJSON string
	var reportJSON sql.NullString
	var createdAt int64

	err := row.Scan(
		&rec.SessionID, &rec.Phase, &rec.MultQuestions, &rec.DivQuestions,
		&messagesJSON, &reportJSON, &rec.Timestamp, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if reportJSON.Valid {
		var report domain.Report
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		rec.Report = &report
	}
	rec.CreatedAt = time.Unix(createdAt, 0)

	return &rec, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
