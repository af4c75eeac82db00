// Package stubserver is a reference implementation of the portal's realtime
// and minimal CRUD contract, backed by in-memory stores. It exists for local
// development and for exercising the client core against a real peer; the
// production clinic API is a separate system.
package stubserver

import (
	"encoding/json"
	"sync"

	"github.com/curalink/portal-core/internal/socket"
	"go.uber.org/zap"
)

type outbound struct {
	room string
	env  socket.Envelope
}

// Hub routes broadcasts to room members. Rooms are keyed per identity: a
// join with a patientId lands the client in "patient:<id>", a doctorId in
// "doctor:<id>"; events scoped to a patient go to that patient's room.
type Hub struct {
	log *zap.SugaredLogger

	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	done       chan struct{}
	closeOnce  sync.Once

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case cl := <-h.register:
			connectionsTotal.Inc()
			h.log.Debugw("client connected", "client", cl.id)

		case cl := <-h.unregister:
			h.mu.Lock()
			for room := range cl.rooms {
				if members, ok := h.rooms[room]; ok {
					delete(members, cl)
					if len(members) == 0 {
						delete(h.rooms, room)
					}
				}
			}
			h.mu.Unlock()
			close(cl.send)

		case out := <-h.broadcast:
			h.deliver(out)
		}
	}
}

func (h *Hub) join(cl *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[cl] = struct{}{}
	cl.rooms[room] = struct{}{}
}

func (h *Hub) deliver(out outbound) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[out.room]))
	for cl := range h.rooms[out.room] {
		members = append(members, cl)
	}
	h.mu.RUnlock()

	broadcastsTotal.WithLabelValues(out.env.Event).Inc()

	for _, cl := range members {
		select {
		case cl.send <- out.env:
		default:
			// Client is too slow to keep up, drop the frame.
			droppedFramesTotal.Inc()
			h.log.Warnw("client buffer full, dropping frame", "client", cl.id, "event", out.env.Event)
		}
	}
}

// BroadcastToPatient pushes an event to every client in the patient's room.
func (h *Hub) BroadcastToPatient(patientID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("marshal broadcast payload", "event", event, "err", err)
		return
	}

	select {
	case h.broadcast <- outbound{room: patientRoom(patientID), env: socket.Envelope{Event: event, Data: data}}:
	case <-h.done:
	}
}

// BroadcastToDoctor is the staff-side equivalent.
func (h *Hub) BroadcastToDoctor(doctorID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("marshal broadcast payload", "event", event, "err", err)
		return
	}

	select {
	case h.broadcast <- outbound{room: doctorRoom(doctorID), env: socket.Envelope{Event: event, Data: data}}:
	case <-h.done:
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

func patientRoom(id string) string { return "patient:" + id }
func doctorRoom(id string) string  { return "doctor:" + id }
