package socket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoomKey scopes a server-side broadcast room by patient and/or doctor
// identity. The zero value means "no room".
type RoomKey struct {
	PatientID string
	DoctorID  string
}

func (k RoomKey) IsZero() bool {
	return k.PatientID == "" && k.DoctorID == ""
}

// String is the deterministic form used for membership bookkeeping.
func (k RoomKey) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("patient:%s|doctor:%s", k.PatientID, k.DoctorID)
}

// RoomTracker sends the join message exactly once per room per physical
// connection. Membership never survives a reconnect: the server is not
// assumed to remember rooms, so the joined set is keyed by connection epoch
// and discarded whenever the epoch moves.
type RoomTracker struct {
	mgr      *Manager
	log      *zap.SugaredLogger
	joinWait time.Duration

	mu     sync.Mutex
	epoch  uint64
	joined map[string]bool
}

func NewRoomTracker(mgr *Manager, joinWait time.Duration, log *zap.SugaredLogger) *RoomTracker {
	if joinWait == 0 {
		joinWait = time.Second
	}
	return &RoomTracker{
		mgr:      mgr,
		log:      log,
		joinWait: joinWait,
		joined:   make(map[string]bool),
	}
}

// EnsureJoined joins the room if it has not been joined on the current
// connection. When disconnected it waits up to joinWait for the connection,
// then attempts anyway rather than blocking silently forever; the worst
// case is a join the server sees slightly early, and a failed join leaves
// the key unmarked so the next call retries.
func (t *RoomTracker) EnsureJoined(ctx context.Context, key RoomKey) error {
	if key.IsZero() {
		return nil
	}

	epoch := t.mgr.Epoch()

	t.mu.Lock()
	if t.epoch != epoch {
		t.joined = make(map[string]bool)
		t.epoch = epoch
	}
	if t.joined[key.String()] {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if !t.mgr.Connected() {
		t.mgr.WaitConnected(ctx, t.joinWait)
	}

	joinCtx, cancel := context.WithTimeout(ctx, t.joinWait+4*time.Second)
	defer cancel()

	ack, err := t.mgr.Emit(joinCtx, EventJoin, JoinPayload{
		PatientID: key.PatientID,
		DoctorID:  key.DoctorID,
	})
	if err != nil {
		return fmt.Errorf("join %s: %w", key, err)
	}
	if !ack.OK {
		t.log.Warnw("room join rejected", "room", key.String(), "err", ack.Error)
		return fmt.Errorf("join %s: %w", key, ErrJoinRejected)
	}

	t.mu.Lock()
	// Only mark membership if the connection the join went out on is still
	// the current one.
	if t.epoch == t.mgr.Epoch() {
		t.joined[key.String()] = true
	}
	t.mu.Unlock()

	t.log.Debugw("room joined", "room", key.String(), "epoch", epoch)
	return nil
}

// Joined reports whether the room was joined on the current connection.
func (t *RoomTracker) Joined(key RoomKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch == t.mgr.Epoch() && t.joined[key.String()]
}
