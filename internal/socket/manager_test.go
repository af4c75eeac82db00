package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// testServer speaks the envelope protocol over a real websocket so manager
// tests exercise the actual dial/read/ack path.
type testServer struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	conns   []*serverConn
	answer  func(env Envelope) map[string]any
	dials   atomic.Int64
	silence atomic.Bool
}

type serverConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *serverConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		t: t,
		answer: func(Envelope) map[string]any {
			return map[string]any{"ok": true}
		},
	}

	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.dials.Add(1)

		sc := &serverConn{ws: ws}
		ts.mu.Lock()
		ts.conns = append(ts.conns, sc)
		ts.mu.Unlock()

		for {
			var env Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			if env.Seq == 0 || ts.silence.Load() {
				continue
			}
			ts.mu.Lock()
			answer := ts.answer
			ts.mu.Unlock()
			data, _ := json.Marshal(answer(env))
			_ = sc.writeJSON(Envelope{AckSeq: env.Seq, Data: data})
		}
	}))
	t.Cleanup(ts.srv.Close)

	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) setAnswer(fn func(env Envelope) map[string]any) {
	ts.mu.Lock()
	ts.answer = fn
	ts.mu.Unlock()
}

// broadcast pushes an unsolicited event to every live connection.
func (ts *testServer) broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		ts.t.Fatalf("broadcast marshal: %v", err)
	}
	ts.mu.Lock()
	conns := make([]*serverConn, len(ts.conns))
	copy(conns, ts.conns)
	ts.mu.Unlock()

	for _, c := range conns {
		_ = c.writeJSON(Envelope{Event: event, Data: data})
	}
}

// dropAll severs every live connection to force a client reconnect.
func (ts *testServer) dropAll() {
	ts.mu.Lock()
	conns := ts.conns
	ts.conns = nil
	ts.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func startManager(t *testing.T, url string) *Manager {
	t.Helper()

	m := NewManager(ManagerConfig{
		URL:              url,
		HandshakeTimeout: 2 * time.Second,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(m.Close)
	go m.Run(ctx)

	if !m.WaitConnected(ctx, 3*time.Second) {
		t.Fatal("manager never connected")
	}
	return m
}

func TestEmitReceivesAck(t *testing.T) {
	ts := newTestServer(t)
	ts.setAnswer(func(env Envelope) map[string]any {
		return map[string]any{"ok": true, "echo": env.Event}
	})
	m := startManager(t, ts.url())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, err := m.Emit(ctx, EventMessageSend, map[string]string{"content": "hi"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !a.OK {
		t.Fatalf("ack not OK: %+v", a)
	}

	var body struct {
		Echo string `json:"echo"`
	}
	if err := json.Unmarshal(a.Raw, &body); err != nil || body.Echo != EventMessageSend {
		t.Fatalf("ack payload not passed through: %s", a.Raw)
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	m := NewManager(ManagerConfig{URL: "ws://127.0.0.1:1/ws"}, zap.NewNop().Sugar())
	defer m.Close()

	_, err := m.Emit(context.Background(), EventMessageSend, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestReconnectBumpsEpoch(t *testing.T) {
	ts := newTestServer(t)
	m := startManager(t, ts.url())

	first := m.Epoch()
	ts.dropAll()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.Connected() && m.Epoch() > first {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never reconnected: epoch %d, connected %v", m.Epoch(), m.Connected())
}

func TestInFlightEmitFailsOnDisconnect(t *testing.T) {
	ts := newTestServer(t)
	ts.silence.Store(true)
	m := startManager(t, ts.url())

	result := make(chan Ack, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a, err := m.Emit(ctx, EventMessageSend, nil)
		if err != nil {
			a = Ack{OK: false, Error: err.Error()}
		}
		result <- a
	}()

	time.Sleep(50 * time.Millisecond)
	ts.dropAll()

	select {
	case a := <-result:
		if a.OK || a.Error != AckErrConnectionLost {
			t.Fatalf("expected %s, got %+v", AckErrConnectionLost, a)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("emit never resolved after disconnect")
	}
}

func TestSubscribeReplacesPerSubscriber(t *testing.T) {
	ts := newTestServer(t)
	m := startManager(t, ts.url())

	var stale, fresh atomic.Int64
	m.Subscribe("chat-screen", EventMessageNew, func(json.RawMessage) { stale.Add(1) })
	m.Subscribe("chat-screen", EventMessageNew, func(json.RawMessage) { fresh.Add(1) })

	ts.broadcast(EventMessageNew, map[string]any{"message": map[string]string{"id": "m-1"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fresh.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	if fresh.Load() != 1 {
		t.Fatalf("fresh handler fired %d times, want 1", fresh.Load())
	}
	if stale.Load() != 0 {
		t.Fatalf("replaced handler still fired %d times", stale.Load())
	}
}

func TestOnConnectHookRunsPerConnection(t *testing.T) {
	ts := newTestServer(t)

	m := NewManager(ManagerConfig{
		URL:              ts.url(),
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}, zap.NewNop().Sugar())
	defer m.Close()

	var fires atomic.Int64
	m.OnConnect("rooms", func() { fires.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	if !m.WaitConnected(ctx, 3*time.Second) {
		t.Fatal("never connected")
	}

	ts.dropAll()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && fires.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if fires.Load() < 2 {
		t.Fatalf("hook fired %d times, want one per connection", fires.Load())
	}
}
