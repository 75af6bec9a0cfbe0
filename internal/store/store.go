// Package store provides snapshot persistence for interview sessions.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/math-interviewer/internal/domain"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for a session.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrStorageClosed is returned after Close.
	ErrStorageClosed = errors.New("storage is closed")
	// ErrInvalidSessionID is returned for IDs unsafe to use as a key.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Backend names accepted by SNAPSHOT_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Repository persists session snapshots. Saving a session overwrites its
// previous snapshot.
type Repository interface {
	// Name returns the backend name used in logs and metrics.
	Name() string

	// SaveSnapshot writes rec and returns a location describing where it went.
	SaveSnapshot(ctx context.Context, rec *domain.SessionRecord) (string, error)

	// LoadSnapshot returns the latest snapshot for sessionID, or
	// ErrSnapshotNotFound.
	LoadSnapshot(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
