package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Handler receives the raw payload of an inbound broadcast.
type Handler func(data json.RawMessage)

type ManagerConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Manager owns exactly one physical websocket connection. It is constructed
// explicitly and passed down; callers share the instance instead of a
// module-level global. The connection layer retries forever, so the only
// caller-visible failure mode is event-level (Emit/Queue), never
// "connection permanently failed".
type Manager struct {
	cfg    ManagerConfig
	log    *zap.SugaredLogger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *connWrapper
	status   Status
	epoch    uint64
	seq      uint64
	pending  map[uint64]chan Ack
	handlers map[string]map[string]Handler // event -> subscriber -> handler
	hooks    map[string]func()             // on-connect hooks
	connWait chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewManager(cfg ManagerConfig, log *zap.SugaredLogger) *Manager {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectInitial == 0 {
		cfg.ReconnectInitial = 100 * time.Millisecond
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 3 * time.Second
	}

	return &Manager{
		cfg: cfg,
		log: log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		status:   StatusDisconnected,
		pending:  make(map[uint64]chan Ack),
		handlers: make(map[string]map[string]Handler),
		hooks:    make(map[string]func()),
		done:     make(chan struct{}),
	}
}

// Run owns the connect/read/redial loop until ctx is cancelled or Close is
// called. Reconnection is infinite with exponential backoff.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		default:
		}

		m.setStatus(StatusConnecting)

		conn, err := m.dialForever(ctx)
		if err != nil {
			m.setStatus(StatusDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		w := newConnWrapper(conn)

		m.mu.Lock()
		m.conn = w
		m.status = StatusConnected
		m.epoch++
		epoch := m.epoch
		if m.connWait != nil {
			close(m.connWait)
			m.connWait = nil
		}
		hooks := make([]func(), 0, len(m.hooks))
		for _, h := range m.hooks {
			hooks = append(hooks, h)
		}
		m.mu.Unlock()

		m.log.Infow("socket connected", "url", m.cfg.URL, "epoch", epoch)

		// Hooks re-join rooms and drain the delivery queue. They run off the
		// read loop so acks can be received while they emit.
		go func() {
			for _, h := range hooks {
				h()
			}
		}()

		err = m.readLoop(w)

		m.mu.Lock()
		m.conn = nil
		m.status = StatusDisconnected
		pending := m.pending
		m.pending = make(map[uint64]chan Ack)
		m.mu.Unlock()

		_ = w.Close()

		// In-flight emits observe the drop as a failed ack, not an exception.
		for _, ch := range pending {
			ch <- Ack{OK: false, Error: AckErrConnectionLost}
		}

		m.log.Warnw("socket disconnected", "reason", err, "epoch", epoch)
	}
}

func (m *Manager) dialForever(ctx context.Context) (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectInitial
	bo.MaxInterval = m.cfg.ReconnectMax

	attempt := 0
	op := func() (*websocket.Conn, error) {
		select {
		case <-m.done:
			return nil, backoff.Permanent(ErrClosed)
		default:
		}

		attempt++
		c, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
		}
		return c, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.log.Debugw("socket reconnect attempt failed", "attempt", attempt, "err", err, "retry_in", next)
		}),
	)
}

func (m *Manager) readLoop(w *connWrapper) error {
	for {
		var env Envelope
		if err := w.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("unexpected close: %w", err)
			}
			return err
		}

		switch {
		case env.AckSeq != 0:
			m.mu.Lock()
			ch, ok := m.pending[env.AckSeq]
			delete(m.pending, env.AckSeq)
			m.mu.Unlock()
			if ok {
				ch <- decodeAck(env.Data)
			}
		case env.Event != "":
			m.dispatch(env.Event, env.Data)
		}
	}
}

func (m *Manager) dispatch(event string, data json.RawMessage) {
	m.mu.Lock()
	subs := m.handlers[event]
	list := make([]Handler, 0, len(subs))
	for _, h := range subs {
		list = append(list, h)
	}
	m.mu.Unlock()

	for _, h := range list {
		h(data)
	}
}

// Emit sends an acknowledged event and waits for its ack. Timeout is the
// caller's business: pass a deadline-bound ctx.
func (m *Manager) Emit(ctx context.Context, event string, payload any) (Ack, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	m.mu.Lock()
	if m.status != StatusConnected || m.conn == nil {
		m.mu.Unlock()
		return Ack{}, ErrNotConnected
	}
	m.seq++
	seq := m.seq
	ch := make(chan Ack, 1)
	m.pending[seq] = ch
	w := m.conn
	m.mu.Unlock()

	if err := w.WriteJSON(Envelope{Seq: seq, Event: event, Data: data}); err != nil {
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return Ack{}, fmt.Errorf("write %s: %w", event, err)
	}

	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return Ack{}, ctx.Err()
	case <-m.done:
		return Ack{}, ErrClosed
	}
}

// Subscribe registers handler for event under the subscriber's name,
// replacing any handler that subscriber already had for the event. Component
// re-mounts therefore cannot stack duplicate listeners.
func (m *Manager) Subscribe(subscriber, event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.handlers[event]
	if !ok {
		subs = make(map[string]Handler)
		m.handlers[event] = subs
	}
	subs[subscriber] = h
}

func (m *Manager) Unsubscribe(subscriber, event string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if subs, ok := m.handlers[event]; ok {
		delete(subs, subscriber)
		if len(subs) == 0 {
			delete(m.handlers, event)
		}
	}
}

// OnConnect registers fn to run after every successful (re)connect,
// replacing any hook already registered under id.
func (m *Manager) OnConnect(id string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[id] = fn
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Connected() bool {
	return m.Status() == StatusConnected
}

// Epoch identifies the current physical connection; it increments on every
// successful connect. Room membership is scoped to an epoch.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// WaitConnected blocks until the manager is connected, the wait budget is
// spent, or ctx is done. A timeout is not an error to panic over; callers
// like the room tracker proceed anyway.
func (m *Manager) WaitConnected(ctx context.Context, wait time.Duration) bool {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		if m.status == StatusConnected {
			m.mu.Unlock()
			return true
		}
		if m.connWait == nil {
			m.connWait = make(chan struct{})
		}
		ch := m.connWait
		m.mu.Unlock()

		select {
		case <-ch:
			// connected; loop to confirm
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		case <-m.done:
			return false
		}
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// Close tears the connection down for good (forced logout, shutdown).
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		w := m.conn
		m.conn = nil
		m.status = StatusDisconnected
		m.mu.Unlock()

		if w != nil {
			_ = w.Close()
		}
	})
}
