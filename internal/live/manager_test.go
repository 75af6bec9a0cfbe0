package live

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashureev/math-interviewer/internal/metrics"
)

func TestSessionManager_Register(t *testing.T) {
	sm := NewSessionManager(nil)
	conn := &websocket.Conn{}

	sm.Register("20261017_101500_aaaa0001", conn)

	if active := sm.lookup("20261017_101500_aaaa0001"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if sm.count() != 1 {
		t.Errorf("Expected 1 active session, got %d", sm.count())
	}
}

func TestSessionManager_Unregister(t *testing.T) {
	sm := NewSessionManager(nil)
	conn := &websocket.Conn{}

	sm.Register("s1", conn)
	sm.Unregister("s1", conn)

	if active := sm.lookup("s1"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
}

func TestSessionManager_UnregisterStale(t *testing.T) {
	sm := NewSessionManager(nil)
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register("s1", conn1)
	sm.Register("s2", conn2)

	// A stale unregister for another connection must not detach s2.
	sm.Unregister("s2", conn1)

	if active := sm.lookup("s2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestSessionManager_Rebind(t *testing.T) {
	sm := NewSessionManager(nil)
	conn := &websocket.Conn{}

	sm.Register("old", conn)
	sm.Rebind("old", "new", conn)

	if sm.lookup("old") != nil {
		t.Error("Expected old session to be detached")
	}
	if sm.lookup("new") != conn {
		t.Error("Expected connection to follow the new session")
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	sm := NewSessionManager(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Register("s-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.lookup("s-" + strconv.Itoa(i))
		}
	}()
	wg.Wait()

	if sm.count() != 1000 {
		t.Errorf("Expected 1000 sessions, got %d", sm.count())
	}
}

func TestSessionManager_TracksLiveConnectionGauge(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	sm := NewSessionManager(m)
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register("s1", conn1)
	sm.Register("s2", conn2)
	if got := testutil.ToFloat64(m.LiveConnections); got != 2 {
		t.Errorf("Expected gauge 2, got %v", got)
	}

	sm.Unregister("s1", conn1)
	if got := testutil.ToFloat64(m.LiveConnections); got != 1 {
		t.Errorf("Expected gauge 1, got %v", got)
	}

	sm.Unregister("s2", conn2)
	if got := testutil.ToFloat64(m.LiveConnections); got != 0 {
		t.Errorf("Expected gauge 0, got %v", got)
	}
}
