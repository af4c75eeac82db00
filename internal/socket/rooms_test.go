package socket

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEnsureJoinedOncePerConnection(t *testing.T) {
	ts := newTestServer(t)
	var joins atomic.Int64
	ts.setAnswer(func(env Envelope) map[string]any {
		if env.Event == EventJoin {
			joins.Add(1)
		}
		return map[string]any{"ok": true}
	})

	m := startManager(t, ts.url())
	tracker := NewRoomTracker(m, 500*time.Millisecond, zap.NewNop().Sugar())
	key := RoomKey{PatientID: "p-1"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := tracker.EnsureJoined(ctx, key); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := tracker.EnsureJoined(ctx, key); err != nil {
		t.Fatalf("second join: %v", err)
	}

	if got := joins.Load(); got != 1 {
		t.Fatalf("join sent %d times on one connection, want 1", got)
	}
	if !tracker.Joined(key) {
		t.Fatal("Joined() = false after successful join")
	}
}

func TestMembershipResetsOnReconnect(t *testing.T) {
	ts := newTestServer(t)
	var joins atomic.Int64
	ts.setAnswer(func(env Envelope) map[string]any {
		if env.Event == EventJoin {
			joins.Add(1)
		}
		return map[string]any{"ok": true}
	})

	m := startManager(t, ts.url())
	tracker := NewRoomTracker(m, 500*time.Millisecond, zap.NewNop().Sugar())
	key := RoomKey{PatientID: "p-1", DoctorID: "d-1"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tracker.EnsureJoined(ctx, key); err != nil {
		t.Fatalf("join: %v", err)
	}

	first := m.Epoch()
	ts.dropAll()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !(m.Connected() && m.Epoch() > first) {
		time.Sleep(10 * time.Millisecond)
	}
	if !m.Connected() {
		t.Fatal("never reconnected")
	}

	if tracker.Joined(key) {
		t.Fatal("membership survived a reconnect")
	}
	if err := tracker.EnsureJoined(ctx, key); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if got := joins.Load(); got != 2 {
		t.Fatalf("join sent %d times across two connections, want 2", got)
	}
}

func TestJoinRejectedLeavesRetryPossible(t *testing.T) {
	ts := newTestServer(t)
	var allow atomic.Bool
	ts.setAnswer(func(env Envelope) map[string]any {
		if env.Event == EventJoin && !allow.Load() {
			return map[string]any{"ok": false, "error": "forbidden"}
		}
		return map[string]any{"ok": true}
	})

	m := startManager(t, ts.url())
	tracker := NewRoomTracker(m, 500*time.Millisecond, zap.NewNop().Sugar())
	key := RoomKey{PatientID: "p-1"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := tracker.EnsureJoined(ctx, key)
	if !errors.Is(err, ErrJoinRejected) {
		t.Fatalf("err = %v, want ErrJoinRejected", err)
	}
	if tracker.Joined(key) {
		t.Fatal("rejected join marked as membership")
	}

	allow.Store(true)
	if err := tracker.EnsureJoined(ctx, key); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
	if !tracker.Joined(key) {
		t.Fatal("successful retry not marked")
	}
}

func TestZeroRoomKeyIsNoop(t *testing.T) {
	tracker := NewRoomTracker(NewManager(ManagerConfig{URL: "ws://127.0.0.1:1/ws"}, zap.NewNop().Sugar()), time.Second, zap.NewNop().Sugar())

	if err := tracker.EnsureJoined(context.Background(), RoomKey{}); err != nil {
		t.Fatalf("zero key must be a no-op, got %v", err)
	}
}

func TestRoomKeyString(t *testing.T) {
	if got := (RoomKey{PatientID: "p-1", DoctorID: "d-2"}).String(); got != "patient:p-1|doctor:d-2" {
		t.Fatalf("String() = %q", got)
	}
	if got := (RoomKey{}).String(); got != "" {
		t.Fatalf("zero String() = %q", got)
	}
}
