package socket

import "encoding/json"

// Event names shared with the clinic server.
const (
	// outbound (acknowledged)
	EventJoin          = "join"
	EventMessageSend   = "message:send"
	EventMessagesClear = "messages:clear"

	// inbound broadcasts
	EventMessageNew           = "message:new"
	EventMessagesCleared      = "messages:cleared"
	EventAppointmentNew       = "appointment:new"
	EventAppointmentUpdate    = "appointment:update"
	EventAppointmentCancelled = "appointment:cancelled"
	EventProcedureCompleted   = "procedure:completed"
	EventInvoiceCreated       = "invoice:created"
	EventInvoicePaid          = "invoice:paid"
)

// Envelope is the single frame shape on the wire. A frame with Seq > 0 is a
// client event requesting an ack; a frame with AckSeq > 0 is the server's ack
// for it; a frame with only Event set is a broadcast.
type Envelope struct {
	Seq    uint64          `json:"seq,omitempty"`
	AckSeq uint64          `json:"ack,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Ack is the server's answer to an acknowledged event. Raw keeps the full
// payload so callers can pull event-specific fields (e.g. the persisted
// message echoed back by message:send).
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func decodeAck(data json.RawMessage) Ack {
	a := Ack{Raw: data}
	if len(data) == 0 {
		return a
	}
	if err := json.Unmarshal(data, &a); err != nil {
		a.OK = false
		a.Error = "malformed_ack"
	}
	a.Raw = data
	return a
}
