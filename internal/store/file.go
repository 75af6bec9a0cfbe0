package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/identity"
)

// FileStore writes one indented JSON document per session:
//
//	<dir>/interview_<session_id>.json
//
// Each save replaces the file atomically through a temp file and rename.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	closed bool
}

var _ Repository = (*FileStore)(nil)

// NewFileStore creates a file-backed repository rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Name returns the backend name.
func (f *FileStore) Name() string {
	return BackendFile
}

func (f *FileStore) path(sessionID string) (string, error) {
	if !identity.ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(f.dir, "interview_"+sessionID+".json"), nil
}

// SaveSnapshot writes rec to its session file.
func (f *FileStore) SaveSnapshot(_ context.Context, rec *domain.SessionRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return "", ErrStorageClosed
	}
	if rec == nil {
		return "", fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}
	path, err := f.path(rec.SessionID)
	if err != nil {
		return "", err
	}

	data, err := rec.MarshalIndented()
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".interview_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads the session file.
func (f *FileStore) LoadSnapshot(_ context.Context, sessionID string) (*domain.SessionRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStorageClosed
	}
	path, err := f.path(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - session id validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return domain.DecodeRecord(data)
}

// Ping checks that the snapshot directory is still usable.
func (f *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("stat snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot path %s is not a directory", f.dir)
	}
	return nil
}

// Close marks the store closed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
