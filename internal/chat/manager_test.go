package chat

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestSessionManager_Register(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register(7, "conn-1", conn)

	if got := sm.Count(7); got != 1 {
		t.Errorf("Expected 1 connection, got %d", got)
	}
}

func TestSessionManager_Unregister(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register(7, "conn-1", conn)
	sm.Unregister(7, "conn-1", conn)

	if got := sm.Count(7); got != 0 {
		t.Errorf("Expected no connections, got %d", got)
	}
}

func TestSessionManager_UnregisterStale(t *testing.T) {
	sm := NewSessionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register(7, "conn-1", conn1)
	sm.Register(7, "conn-2", conn2)

	// A stale handle for a different connection must not remove the live one.
	sm.Unregister(7, "conn-2", conn1)
	if got := sm.Count(7); got != 2 {
		t.Errorf("Expected 2 connections, got %d", got)
	}

	sm.Unregister(7, "conn-1", conn1)
	if got := sm.Count(7); got != 1 {
		t.Errorf("Expected 1 connection, got %d", got)
	}
}

func TestSessionManager_CloseUnknownSession(t *testing.T) {
	sm := NewSessionManager()
	sm.CloseSession(404)
	if got := sm.Count(404); got != 0 {
		t.Errorf("Expected no connections, got %d", got)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Register(1, "conn-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Count(1)
		}
	}()

	wg.Wait()
	if got := sm.Count(1); got != 1000 {
		t.Errorf("Expected 1000 connections, got %d", got)
	}
}
