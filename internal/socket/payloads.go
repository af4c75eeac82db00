package socket

import (
	"encoding/json"
	"fmt"

	"github.com/curalink/portal-core/internal/domain"
)

// Outbound payloads.

type JoinPayload struct {
	PatientID string `json:"patientId,omitempty"`
	DoctorID  string `json:"doctorId,omitempty"`
}

type MessageSendPayload struct {
	PatientID string      `json:"patientId"`
	Sender    domain.Role `json:"sender"`
	Content   string      `json:"content"`
}

type MessagesClearPayload struct {
	PatientID string `json:"patientId"`
}

// Inbound payloads, decoded and validated at the boundary so the reconcilers
// never see a structurally invalid record.

type MessageNewPayload struct {
	Message domain.ChatMessage `json:"message"`
}

type MessagesClearedPayload struct {
	PatientID string `json:"patientId"`
}

type AppointmentEventPayload struct {
	Appointment domain.Appointment `json:"appointment"`
	By          domain.Role        `json:"by,omitempty"`
}

type AppointmentCancelledPayload struct {
	AppointmentID string      `json:"appointmentId"`
	PatientID     string      `json:"patientId"`
	By            domain.Role `json:"by,omitempty"`
}

type ProcedureCompletedPayload struct {
	Procedure domain.Procedure `json:"procedure"`
}

type InvoiceEventPayload struct {
	Invoice domain.Invoice `json:"invoice"`
}

func DecodeMessageNew(data json.RawMessage) (MessageNewPayload, error) {
	var p MessageNewPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", EventMessageNew, err)
	}
	if p.Message.ID == "" || p.Message.PatientID == "" {
		return p, fmt.Errorf("decode %s: %w", EventMessageNew, domain.ErrInvalidInput)
	}
	if !p.Message.Sender.Valid() {
		return p, fmt.Errorf("decode %s: bad sender %q: %w", EventMessageNew, p.Message.Sender, domain.ErrInvalidInput)
	}
	return p, nil
}

func DecodeMessagesCleared(data json.RawMessage) (MessagesClearedPayload, error) {
	var p MessagesClearedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", EventMessagesCleared, err)
	}
	if p.PatientID == "" {
		return p, fmt.Errorf("decode %s: %w", EventMessagesCleared, domain.ErrInvalidInput)
	}
	return p, nil
}

func DecodeAppointmentEvent(event string, data json.RawMessage) (AppointmentEventPayload, error) {
	var p AppointmentEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", event, err)
	}
	if p.Appointment.ID == "" {
		return p, fmt.Errorf("decode %s: %w", event, domain.ErrInvalidInput)
	}
	return p, nil
}

func DecodeAppointmentCancelled(data json.RawMessage) (AppointmentCancelledPayload, error) {
	var p AppointmentCancelledPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", EventAppointmentCancelled, err)
	}
	if p.AppointmentID == "" {
		return p, fmt.Errorf("decode %s: %w", EventAppointmentCancelled, domain.ErrInvalidInput)
	}
	return p, nil
}

func DecodeProcedureCompleted(data json.RawMessage) (ProcedureCompletedPayload, error) {
	var p ProcedureCompletedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", EventProcedureCompleted, err)
	}
	if p.Procedure.ID == "" {
		return p, fmt.Errorf("decode %s: %w", EventProcedureCompleted, domain.ErrInvalidInput)
	}
	return p, nil
}

func DecodeInvoiceEvent(event string, data json.RawMessage) (InvoiceEventPayload, error) {
	var p InvoiceEventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", event, err)
	}
	if p.Invoice.ID == "" {
		return p, fmt.Errorf("decode %s: %w", event, domain.ErrInvalidInput)
	}
	return p, nil
}
