package stubserver

import (
	"encoding/json"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"github.com/curalink/portal-core/internal/socket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

type client struct {
	id    string
	conn  *websocket.Conn
	send  chan socket.Envelope
	rooms map[string]struct{}

	hub      *Hub
	messages *MessageStore
}

func newClient(conn *websocket.Conn, hub *Hub, messages *MessageStore) *client {
	return &client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan socket.Envelope, 64), // buffered to avoid dead-locks on slow clients
		rooms:    make(map[string]struct{}),
		hub:      hub,
		messages: messages,
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env socket.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("ws read error", "client", c.id, "err", err)
			}
			return
		}

		c.handle(env)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.hub.log.Warnw("ws write error", "client", c.id, "err", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(env socket.Envelope) {
	switch env.Event {
	case socket.EventJoin:
		c.handleJoin(env)
	case socket.EventMessageSend:
		c.handleMessageSend(env)
	case socket.EventMessagesClear:
		c.handleMessagesClear(env)
	default:
		c.nack(env.Seq, "unknown_event")
	}
}

func (c *client) handleJoin(env socket.Envelope) {
	var p socket.JoinPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || (p.PatientID == "" && p.DoctorID == "") {
		c.nack(env.Seq, "bad_join")
		return
	}

	if p.PatientID != "" {
		c.hub.join(c, patientRoom(p.PatientID))
	}
	if p.DoctorID != "" {
		c.hub.join(c, doctorRoom(p.DoctorID))
	}

	c.ack(env.Seq, map[string]any{"ok": true})
}

func (c *client) handleMessageSend(env socket.Envelope) {
	var p socket.MessageSendPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.PatientID == "" || p.Content == "" || !p.Sender.Valid() {
		c.nack(env.Seq, "bad_message")
		return
	}

	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		PatientID: p.PatientID,
		Sender:    p.Sender,
		Content:   p.Content,
		CreatedAt: time.Now().UTC(),
	}
	c.messages.Add(msg)

	c.ack(env.Seq, map[string]any{"ok": true, "message": msg})
	c.hub.BroadcastToPatient(p.PatientID, socket.EventMessageNew, socket.MessageNewPayload{Message: msg})
}

func (c *client) handleMessagesClear(env socket.Envelope) {
	var p socket.MessagesClearPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.PatientID == "" {
		c.nack(env.Seq, "bad_clear")
		return
	}

	c.messages.Clear(p.PatientID)

	c.ack(env.Seq, map[string]any{"ok": true})
	c.hub.BroadcastToPatient(p.PatientID, socket.EventMessagesCleared, socket.MessagesClearedPayload{PatientID: p.PatientID})
}

func (c *client) ack(seq uint64, payload any) {
	if seq == 0 {
		return
	}
	data, _ := json.Marshal(payload)
	select {
	case c.send <- socket.Envelope{AckSeq: seq, Data: data}:
	default:
		droppedFramesTotal.Inc()
	}
}

func (c *client) nack(seq uint64, reason string) {
	c.ack(seq, map[string]any{"ok": false, "error": reason})
}
