package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIssuesUniqueIDs(t *testing.T) {
	t.Parallel()

	st := NewStore(newMemSnapshots(), DefaultSettings(), nil, nil)
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s, err := st.Create(context.Background())
		require.NoError(t, err)
		require.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		assert.Regexp(t, `^20261017_090000_[0-9a-f]{8}$`, s.ID)
	}
	assert.Equal(t, 50, st.Len())
}

func TestGetOrCreateReturnsCopies(t *testing.T) {
	t.Parallel()

	st := NewStore(newMemSnapshots(), DefaultSettings(), nil, nil)
	s, err := st.Create(context.Background())
	require.NoError(t, err)

	s.Append(domain.RoleRespondent, "local edit", false)
	again, err := st.GetOrCreate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len(), "callers must not alias stored state")
}

func TestMutateSerializesPerSession(t *testing.T) {
	t.Parallel()

	st := NewStore(newMemSnapshots(), DefaultSettings(), nil, nil)
	s, err := st.Create(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Mutate(context.Background(), s.ID, func(state *domain.SessionState) error {
				n := state.MultiplicationQuestions
				time.Sleep(time.Millisecond)
				state.MultiplicationQuestions = n + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.GetOrCreate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.MultiplicationQuestions)
}

func TestDistinctSessionsRunInParallel(t *testing.T) {
	t.Parallel()

	st := NewStore(newMemSnapshots(), DefaultSettings(), nil, nil)
	a, err := st.Create(context.Background())
	require.NoError(t, err)
	b, err := st.Create(context.Background())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.Mutate(context.Background(), a.ID, func(*domain.SessionState) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = st.Mutate(context.Background(), b.ID, func(*domain.SessionState) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a held session lock blocked another session")
	}
	close(release)
}

func TestSweepEvictsIdleSessionsAndRestoresThem(t *testing.T) {
	t.Parallel()

	snaps := newMemSnapshots()
	st := NewStore(snaps, DefaultSettings(), nil, nil)
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return clock }

	s, err := st.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Mutate(context.Background(), s.ID, func(state *domain.SessionState) error {
		state.Append(domain.RoleRespondent, "intro", false)
		return nil
	}))

	clock = clock.Add(10 * time.Minute)
	assert.Equal(t, 0, st.Sweep(context.Background(), time.Hour), "recent sessions stay")

	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 1, st.Sweep(context.Background(), time.Hour))
	assert.Equal(t, 0, st.Len())

	restored, err := st.GetOrCreate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, "intro", restored.Transcript[1].Content)
}

func TestIssuedIDsAreReleasedOnEviction(t *testing.T) {
	t.Parallel()

	st := NewStore(newMemSnapshots(), DefaultSettings(), nil, nil)
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return clock }

	s, err := st.Create(context.Background())
	require.NoError(t, err)
	_, err = st.GetOrCreate(context.Background(), "20261017_080000_0000abcd")
	require.NoError(t, err)

	st.mu.Lock()
	assert.Len(t, st.issued, 1, "only generated IDs are recorded")
	st.mu.Unlock()

	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 2, st.Sweep(context.Background(), time.Hour))

	st.mu.Lock()
	assert.Empty(t, st.issued)
	st.mu.Unlock()

	restored, err := st.GetOrCreate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, restored.ID)
}

func TestSweepKeepsSessionsWhenSnapshotFails(t *testing.T) {
	t.Parallel()

	snaps := newMemSnapshots()
	snaps.fail = true
	st := NewStore(snaps, DefaultSettings(), nil, nil)
	clock := time.Now()
	st.now = func() time.Time { return clock }

	_, err := st.Create(context.Background())
	require.NoError(t, err)
	clock = clock.Add(3 * time.Hour)

	assert.Equal(t, 0, st.Sweep(context.Background(), time.Hour))
	assert.Equal(t, 1, st.Len())
}

func TestSweepSkipsBusySessions(t *testing.T) {
	t.Parallel()

	st := NewStore(newMemSnapshots(), DefaultSettings(), nil, nil)
	clock := time.Now()
	st.now = func() time.Time { return clock }
	s, err := st.Create(context.Background())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		_ = st.Mutate(context.Background(), s.ID, func(*domain.SessionState) error {
			close(entered)
			<-release
			return nil
		})
		close(finished)
	}()
	<-entered

	clock = clock.Add(3 * time.Hour)
	assert.Equal(t, 0, st.Sweep(context.Background(), time.Hour))
	close(release)
	<-finished
	assert.Equal(t, 1, st.Len())
}

func TestFlushSnapshotsEverySession(t *testing.T) {
	t.Parallel()

	snaps := newMemSnapshots()
	st := NewStore(snaps, DefaultSettings(), nil, nil)
	for i := 0; i < 3; i++ {
		_, err := st.Create(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, st.Flush(context.Background()))
	assert.Len(t, snaps.saved, 3)
}
