package interview

import (
	"context"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

type sweepCandidate struct {
	id string
	e  *entry
}

// StartSweeper runs a background goroutine that periodically snapshots and
// evicts sessions idle for longer than ttl. Evicted sessions are restored
// from their snapshot on next access.
func (s *Store) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ctx, ttl); n > 0 {
					s.logger.Info("Session sweeper evicted idle sessions", "count", n)
				}
			case <-ctx.Done():
				s.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep evicts sessions idle for longer than ttl and returns how many were
// evicted. Sessions with a call in flight are skipped, as are sessions whose
// snapshot fails.
func (s *Store) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := s.now().Add(-ttl).UnixNano()

	var candidates []sweepCandidate
	s.mu.Lock()
	for id, e := range s.sessions {
		if e.lastActive.Load() < cutoff {
			candidates = append(candidates, sweepCandidate{id: id, e: e})
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if s.evict(ctx, c, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		s.metrics.SetActiveSessions(s.Len())
	}
	return evicted
}

func (s *Store) evict(ctx context.Context, c sweepCandidate, cutoff int64) bool {
	if !c.e.mu.TryLock() {
		return false
	}
	defer c.e.mu.Unlock()

	if c.e.removed || c.e.lastActive.Load() >= cutoff {
		return false
	}
	if _, ok := s.snapshots.Snapshot(ctx, c.e.state); !ok {
		s.logger.Warn("Keeping idle session in memory, snapshot failed", "session_id", c.id)
		return false
	}

	s.mu.Lock()
	if s.sessions[c.id] == c.e {
		delete(s.sessions, c.id)
		delete(s.issued, c.id)
	}
	s.mu.Unlock()
	c.e.removed = true
	return true
}

// Flush snapshots every session in memory and returns how many were saved.
// It is called on shutdown.
func (s *Store) Flush(ctx context.Context) int {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	saved := 0
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed && e.state != nil {
			if _, ok := s.snapshots.Snapshot(ctx, e.state); ok {
				saved++
			}
		}
		e.mu.Unlock()
	}
	return saved
}
