package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/ashureev/math-interviewer/internal/metrics"
)

// Gateway is the persistence boundary used by the interview package.
// Snapshot failures are logged and reported as ok == false; they never
// interrupt an interview.
type Gateway struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewGateway wraps repo.
func NewGateway(repo Repository, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Backend returns the repository name.
func (g *Gateway) Backend() string {
	return g.repo.Name()
}

// Snapshot persists the current state of s.
func (g *Gateway) Snapshot(ctx context.Context, s *domain.SessionState) (string, bool) {
	rec := s.Record(g.now())
	location, err := g.repo.SaveSnapshot(ctx, rec)
	g.metrics.RecordSnapshot(g.repo.Name(), err == nil)
	if err != nil {
		g.logger.Warn("Snapshot failed",
			"session_id", s.ID,
			"backend", g.repo.Name(),
			"error", err,
		)
		return "", false
	}
	g.logger.Debug("Snapshot saved",
		"session_id", s.ID,
		"location", location,
		"turns", len(rec.Messages),
	)
	return location, true
}

// Restore loads the last snapshot of sessionID. It returns
// ErrSnapshotNotFound when none exists.
func (g *Gateway) Restore(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	rec, err := g.repo.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s, err := rec.State()
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", sessionID, err)
	}
	return s, nil
}

// Export renders s as the downloadable JSON document.
func (g *Gateway) Export(s *domain.SessionState) ([]byte, error) {
	data, err := s.Record(g.now()).MarshalIndented()
	if err != nil {
		return nil, fmt.Errorf("export session %s: %w", s.ID, err)
	}
	return data, nil
}

// Ping checks the repository.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.repo.Ping(ctx)
}

// Close closes the repository.
func (g *Gateway) Close() error {
	return g.repo.Close()
}

// IsNotFound reports whether err means no snapshot exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}
