// Package portal wires the realtime core together for one signed-in viewer:
// connection manager, room membership, delivery queue, reconcilers and the
// notification dispatcher, fed by the CRUD client for initial load.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"github.com/curalink/portal-core/internal/notify"
	"github.com/curalink/portal-core/internal/portalapi"
	"github.com/curalink/portal-core/internal/reconcile"
	"github.com/curalink/portal-core/internal/socket"
	"go.uber.org/zap"
)

// subscriberID names this session in the manager's handler registry;
// re-subscribing under the same name replaces rather than stacks handlers.
const subscriberID = "portal-session"

type Config struct {
	PatientID string
	DoctorID  string
	Viewer    domain.Role
	JoinWait  time.Duration
	Queue     socket.QueueConfig
}

type Session struct {
	cfg Config
	log *zap.SugaredLogger

	mgr          *socket.Manager
	rooms        *socket.RoomTracker
	queue        *socket.Queue
	api          *portalapi.Client
	book         *reconcile.AppointmentBook
	conversation *reconcile.ConversationLog
	dispatcher   *notify.Dispatcher

	room socket.RoomKey
}

func NewSession(cfg Config, mgr *socket.Manager, api *portalapi.Client, sink notify.Sink, log *zap.SugaredLogger) *Session {
	s := &Session{
		cfg:          cfg,
		log:          log,
		mgr:          mgr,
		api:          api,
		rooms:        socket.NewRoomTracker(mgr, cfg.JoinWait, log),
		queue:        socket.NewQueue(mgr, cfg.Queue, log),
		book:         reconcile.NewAppointmentBook(log),
		conversation: reconcile.NewConversationLog(cfg.PatientID, log),
		room:         socket.RoomKey{PatientID: cfg.PatientID, DoctorID: cfg.DoctorID},
	}

	s.dispatcher = notify.NewDispatcher(cfg.Viewer, sink, s.invalidate, log)

	return s
}

// Start subscribes the inbound handlers, runs the connection loop and
// performs the initial CRUD load. The manager keeps reconnecting on its own;
// this session re-joins its room on every connect.
func (s *Session) Start(ctx context.Context) error {
	s.subscribe()

	s.mgr.OnConnect(subscriberID, func() {
		joinCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.rooms.EnsureJoined(joinCtx, s.room); err != nil {
			s.log.Warnw("room re-join failed", "room", s.room.String(), "err", err)
		}
	})

	go func() {
		if err := s.mgr.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorw("connection loop exited", "err", err)
		}
	}()

	s.mgr.WaitConnected(ctx, 5*time.Second)

	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	return nil
}

// Refresh replaces both collections from a fresh snapshot.
func (s *Session) Refresh(ctx context.Context) error {
	snap, err := s.api.Patients.Get(ctx, s.cfg.PatientID)
	if err != nil {
		return err
	}

	s.book.ReplaceAll(snap.Appointments)
	s.conversation.Replace(snap.Messages)

	return nil
}

// SendMessage queues the message and waits for the server-confirmed record.
// The confirmed message reaches the conversation via the broadcast (or this
// ack, whichever lands first); it is never inserted optimistically.
func (s *Session) SendMessage(ctx context.Context, content string) (domain.ChatMessage, error) {
	ack, err := s.queue.Send(ctx, socket.EventMessageSend, socket.MessageSendPayload{
		PatientID: s.cfg.PatientID,
		Sender:    s.cfg.Viewer,
		Content:   content,
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if !ack.OK {
		return domain.ChatMessage{}, fmt.Errorf("send message: %s", ack.Error)
	}

	var confirmed struct {
		Message domain.ChatMessage `json:"message"`
	}
	if len(ack.Raw) > 0 {
		if err := json.Unmarshal(ack.Raw, &confirmed); err == nil && confirmed.Message.ID != "" {
			s.conversation.Append(confirmed.Message)
		}
	}

	return confirmed.Message, nil
}

// SendMessageAsync is the fire-and-forget form: the UI clears its input
// immediately and learns of terminal failure through the callback.
func (s *Session) SendMessageAsync(content string, ack socket.AckFunc) {
	s.queue.Enqueue(socket.EventMessageSend, socket.MessageSendPayload{
		PatientID: s.cfg.PatientID,
		Sender:    s.cfg.Viewer,
		Content:   content,
	}, ack)
}

func (s *Session) ClearMessages(ctx context.Context) error {
	ack, err := s.queue.Send(ctx, socket.EventMessagesClear, socket.MessagesClearPayload{
		PatientID: s.cfg.PatientID,
	})
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("clear messages: %s", ack.Error)
	}
	return nil
}

// CancelAppointment removes the appointment optimistically once the DELETE
// succeeds; the broadcast that follows finds the id already absent. A server
// that later contradicts the cancel is not reconciled automatically.
func (s *Session) CancelAppointment(ctx context.Context, appointmentID string) error {
	if err := s.api.Appointments.Cancel(ctx, appointmentID); err != nil {
		return err
	}

	s.book.RemoveLocal(appointmentID)
	return nil
}

func (s *Session) RescheduleAppointment(ctx context.Context, appointmentID string, to time.Time) error {
	appt, err := s.api.Appointments.Reschedule(ctx, appointmentID, to)
	if err != nil {
		return err
	}

	s.book.ApplyUpdate(*appt)
	return nil
}

func (s *Session) Appointments() *reconcile.AppointmentBook { return s.book }

func (s *Session) Conversation() *reconcile.ConversationLog { return s.conversation }

func (s *Session) Status() socket.Status { return s.mgr.Status() }

// Joined reports whether the viewer's room is live on the current
// connection; false during a reconnect until the re-join lands.
func (s *Session) Joined() bool { return s.rooms.Joined(s.room) }

func (s *Session) PendingDeliveries() int { return s.queue.Len() }

func (s *Session) Close() {
	s.queue.Close()
	s.mgr.Close()
}

func (s *Session) subscribe() {
	s.mgr.Subscribe(subscriberID, socket.EventMessageNew, func(data json.RawMessage) {
		p, err := socket.DecodeMessageNew(data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventMessageNew, "err", err)
			return
		}
		if p.Message.PatientID != s.cfg.PatientID {
			return
		}
		s.conversation.Append(p.Message)
		s.dispatcher.MessageNew(p.Message)
	})

	s.mgr.Subscribe(subscriberID, socket.EventMessagesCleared, func(data json.RawMessage) {
		p, err := socket.DecodeMessagesCleared(data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventMessagesCleared, "err", err)
			return
		}
		s.conversation.Clear(p.PatientID)
	})

	s.mgr.Subscribe(subscriberID, socket.EventAppointmentNew, func(data json.RawMessage) {
		p, err := socket.DecodeAppointmentEvent(socket.EventAppointmentNew, data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventAppointmentNew, "err", err)
			return
		}
		s.book.ApplyNew(p.Appointment)
		s.dispatcher.AppointmentNew(p.Appointment, p.By)
	})

	s.mgr.Subscribe(subscriberID, socket.EventAppointmentUpdate, func(data json.RawMessage) {
		p, err := socket.DecodeAppointmentEvent(socket.EventAppointmentUpdate, data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventAppointmentUpdate, "err", err)
			return
		}
		s.book.ApplyUpdate(p.Appointment)
		s.dispatcher.AppointmentUpdated(p.Appointment, p.By)
	})

	s.mgr.Subscribe(subscriberID, socket.EventAppointmentCancelled, func(data json.RawMessage) {
		p, err := socket.DecodeAppointmentCancelled(data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventAppointmentCancelled, "err", err)
			return
		}
		s.book.ApplyCancelled(p.AppointmentID)
		s.dispatcher.AppointmentCancelled(p.AppointmentID, p.PatientID, p.By)
	})

	s.mgr.Subscribe(subscriberID, socket.EventProcedureCompleted, func(data json.RawMessage) {
		p, err := socket.DecodeProcedureCompleted(data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventProcedureCompleted, "err", err)
			return
		}
		s.dispatcher.ProcedureCompleted(p.Procedure)
	})

	s.mgr.Subscribe(subscriberID, socket.EventInvoiceCreated, func(data json.RawMessage) {
		p, err := socket.DecodeInvoiceEvent(socket.EventInvoiceCreated, data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventInvoiceCreated, "err", err)
			return
		}
		s.dispatcher.InvoiceCreated(p.Invoice)
	})

	s.mgr.Subscribe(subscriberID, socket.EventInvoicePaid, func(data json.RawMessage) {
		p, err := socket.DecodeInvoiceEvent(socket.EventInvoicePaid, data)
		if err != nil {
			s.log.Warnw("dropping malformed event", "event", socket.EventInvoicePaid, "err", err)
			return
		}
		s.dispatcher.InvoicePaid(p.Invoice)
	})
}

// invalidate refetches the snapshot when billing events make cached reads
// stale. Fire-and-forget; a failed refresh only means the next one catches
// up.
func (s *Session) invalidate(scope string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.log.Warnw("cache refresh failed", "scope", scope, "err", err)
		}
	}()
}
