package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/identity"
	"github.com/ashureev/math-interviewer/internal/metrics"
	"github.com/ashureev/math-interviewer/internal/protocol"
	"github.com/ashureev/math-interviewer/internal/store"
)

var (
	// ErrInvalidSessionID is returned for IDs that fail identity.ValidSessionID.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionReset is returned for IDs discarded by Reset.
	ErrSessionReset = errors.New("session was reset")
)

// Snapshotter persists and restores sessions. Snapshot failures are reported
// through ok and never abort the caller.
type Snapshotter interface {
	Snapshot(ctx context.Context, s *domain.SessionState) (location string, ok bool)
	Restore(ctx context.Context, sessionID string) (*domain.SessionState, error)
}

type entry struct {
	mu    sync.Mutex
	state *domain.SessionState
	// removed is set, under mu, once the entry has left the map. Waiters
	// that observe it must look the session up again.
	removed    bool
	lastActive atomic.Int64
}

func (e *entry) touch(now time.Time) {
	e.lastActive.Store(now.UnixNano())
}

// Store holds one state per session. The map lock only guards lookups; each
// session has its own lock so distinct sessions proceed in parallel.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	// issued holds generated IDs while their session is in memory. IDs
	// carry their creation second, so an evicted one cannot be generated
	// again.
	issued map[string]struct{}
	// retired holds IDs discarded by Reset. They are never served again.
	retired map[string]struct{}

	snapshots Snapshotter
	settings  Settings
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates an empty store backed by snapshots.
func NewStore(snapshots Snapshotter, settings Settings, m *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:  make(map[string]*entry),
		issued:    make(map[string]struct{}),
		retired:   make(map[string]struct{}),
		snapshots: snapshots,
		settings:  settings.withDefaults(),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Len returns the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Create starts a session with a freshly generated ID.
func (s *Store) Create(ctx context.Context) (*domain.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.newIDLocked()
	state := s.freshState(id)
	e := &entry{state: state}
	e.touch(s.now())
	s.sessions[id] = e
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
	s.logger.Info("Interview session created", "session_id", id, "phase", state.Phase)
	return state.Clone(), nil
}

// GetOrCreate returns a copy of the session's state. A session that is not
// in memory is restored from its last snapshot, or created fresh under id.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*domain.SessionState, error) {
	var out *domain.SessionState
	err := s.Mutate(ctx, id, func(state *domain.SessionState) error {
		out = state.Clone()
		return nil
	})
	return out, err
}

// Mutate runs fn with exclusive access to the session's state. Calls for the
// same session never interleave.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*domain.SessionState) error) error {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		e.touch(s.now())
		e.mu.Unlock()
	}()
	return fn(e.state)
}

// Reset snapshots the session when it holds more than the opening exchange,
// discards it and returns a fresh session under an ID never issued before.
// The old ID is retired: later calls with it fail with ErrSessionReset.
func (s *Store) Reset(ctx context.Context, id string) (*domain.SessionState, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	old := e.state
	if old.Len() > 2 {
		if location, ok := s.snapshots.Snapshot(ctx, old); ok {
			s.logger.Info("Session saved before reset", "session_id", id, "location", location)
		}
	}

	s.mu.Lock()
	newID := s.newIDLocked()
	state := s.freshState(newID)
	ne := &entry{state: state}
	ne.touch(s.now())
	if s.sessions[id] == e {
		delete(s.sessions, id)
	}
	delete(s.issued, id)
	s.retired[id] = struct{}{}
	e.removed = true
	s.sessions[newID] = ne
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(n)
	s.logger.Info("Interview session reset", "old_session_id", id, "session_id", newID)
	return state.Clone(), nil
}

// acquire returns the session entry with its lock held.
func (s *Store) acquire(ctx context.Context, id string) (*entry, error) {
	if !identity.ValidSessionID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if _, gone := s.retired[id]; gone {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrSessionReset, id)
		}
		e, ok := s.sessions[id]
		if ok {
			s.mu.Unlock()
			e.mu.Lock()
			if e.removed {
				e.mu.Unlock()
				continue
			}
			return e, nil
		}

		e = &entry{}
		e.mu.Lock()
		s.sessions[id] = e
		n := len(s.sessions)
		s.mu.Unlock()

		s.metrics.SetActiveSessions(n)
		e.state = s.load(ctx, id)
		e.touch(s.now())
		return e, nil
	}
}

func (s *Store) load(ctx context.Context, id string) *domain.SessionState {
	restored, err := s.snapshots.Restore(ctx, id)
	if err == nil {
		s.logger.Info("Interview session restored",
			"session_id", id,
			"phase", restored.Phase,
			"turns", restored.Len(),
		)
		return restored
	}
	if !store.IsNotFound(err) {
		s.logger.Warn("Failed to restore session, starting fresh", "session_id", id, "error", err)
	}
	return s.freshState(id)
}

func (s *Store) freshState(id string) *domain.SessionState {
	if s.settings.SkipIntroduction {
		state := domain.NewSessionState(id, domain.PhaseMultiplication, protocol.MultiplicationOpening, s.now())
		state.MultiplicationQuestions = 1
		return state
	}
	return domain.NewSessionState(id, domain.PhaseIntroduction, protocol.Welcome, s.now())
}

// newIDLocked returns an ID not issued before. Callers hold s.mu.
func (s *Store) newIDLocked() string {
	for {
		id := identity.NewSessionID(s.now())
		if _, dup := s.issued[id]; dup {
			continue
		}
		if _, live := s.sessions[id]; live {
			continue
		}
		if _, gone := s.retired[id]; gone {
			continue
		}
		s.issued[id] = struct{}{}
		return id
	}
}
