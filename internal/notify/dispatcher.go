// Package notify turns inbound domain events into user-facing alerts,
// exactly once per event, with same-origin suppression: nobody is told about
// their own chat message.
package notify

import (
	"fmt"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"go.uber.org/zap"
)

type AlertKind string

const (
	AlertMessage     AlertKind = "message"
	AlertAppointment AlertKind = "appointment"
	AlertProcedure   AlertKind = "procedure"
	AlertInvoice     AlertKind = "invoice"
)

type Alert struct {
	Kind      AlertKind
	Title     string
	Body      string
	PatientID string
	At        time.Time
}

// Sink is where alerts go: a toast layer, a push bridge, a test recorder.
type Sink interface {
	Notify(Alert)
}

type SinkFunc func(Alert)

func (f SinkFunc) Notify(a Alert) { f(a) }

// InvalidateFunc is called when a billing-side event means cached CRUD reads
// (procedures, invoices) are stale and should be refetched.
type InvalidateFunc func(scope string)

const (
	ScopeProcedures = "procedures"
	ScopeInvoices   = "invoices"
)

type Dispatcher struct {
	viewer     domain.Role
	sink       Sink
	invalidate InvalidateFunc
	log        *zap.SugaredLogger
}

func NewDispatcher(viewer domain.Role, sink Sink, invalidate InvalidateFunc, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		viewer:     viewer,
		sink:       sink,
		invalidate: invalidate,
		log:        log,
	}
}

// MessageNew alerts on an incoming chat message unless the viewer authored
// it themselves.
func (d *Dispatcher) MessageNew(m domain.ChatMessage) {
	if m.Sender == d.viewer {
		return
	}

	from := "the clinic"
	if m.Sender == domain.RolePatient {
		from = "the patient"
	}

	d.emit(Alert{
		Kind:      AlertMessage,
		Title:     "New message",
		Body:      fmt.Sprintf("New message from %s", from),
		PatientID: m.PatientID,
		At:        m.CreatedAt,
	})
}

// AppointmentNew picks its copy by actor: a booking the viewer made reads as
// a confirmation, one made by the other side reads as news.
func (d *Dispatcher) AppointmentNew(a domain.Appointment, by domain.Role) {
	body := fmt.Sprintf("Appointment %q booked for %s", a.Title, a.Datetime.Format("Jan 2 15:04"))
	if by != "" && by == d.viewer {
		body = fmt.Sprintf("Your booking of %q is confirmed for %s", a.Title, a.Datetime.Format("Jan 2 15:04"))
	}

	d.emit(Alert{
		Kind:      AlertAppointment,
		Title:     "Appointment booked",
		Body:      body,
		PatientID: a.PatientID,
		At:        time.Now(),
	})
}

func (d *Dispatcher) AppointmentUpdated(a domain.Appointment, by domain.Role) {
	body := fmt.Sprintf("Appointment %q was moved to %s", a.Title, a.Datetime.Format("Jan 2 15:04"))
	if by != "" && by == d.viewer {
		body = fmt.Sprintf("Your change to %q is confirmed: %s", a.Title, a.Datetime.Format("Jan 2 15:04"))
	}

	d.emit(Alert{
		Kind:      AlertAppointment,
		Title:     "Appointment updated",
		Body:      body,
		PatientID: a.PatientID,
		At:        time.Now(),
	})
}

func (d *Dispatcher) AppointmentCancelled(appointmentID, patientID string, by domain.Role) {
	body := "An appointment was cancelled"
	if by != "" && by == d.viewer {
		body = "Your cancellation is confirmed"
	}

	d.emit(Alert{
		Kind:      AlertAppointment,
		Title:     "Appointment cancelled",
		Body:      body,
		PatientID: patientID,
		At:        time.Now(),
	})
}

func (d *Dispatcher) ProcedureCompleted(p domain.Procedure) {
	d.emit(Alert{
		Kind:      AlertProcedure,
		Title:     "Procedure completed",
		Body:      fmt.Sprintf("Procedure %q is complete", p.Name),
		PatientID: p.PatientID,
		At:        time.Now(),
	})

	if d.invalidate != nil {
		d.invalidate(ScopeProcedures)
	}
}

func (d *Dispatcher) InvoiceCreated(inv domain.Invoice) {
	d.emit(Alert{
		Kind:      AlertInvoice,
		Title:     "New invoice",
		Body:      fmt.Sprintf("Invoice for %s issued", formatAmount(inv)),
		PatientID: inv.PatientID,
		At:        time.Now(),
	})

	if d.invalidate != nil {
		d.invalidate(ScopeInvoices)
	}
}

func (d *Dispatcher) InvoicePaid(inv domain.Invoice) {
	d.emit(Alert{
		Kind:      AlertInvoice,
		Title:     "Invoice paid",
		Body:      fmt.Sprintf("Payment of %s received", formatAmount(inv)),
		PatientID: inv.PatientID,
		At:        time.Now(),
	})

	if d.invalidate != nil {
		d.invalidate(ScopeInvoices)
	}
}

func (d *Dispatcher) emit(a Alert) {
	if d.sink == nil {
		return
	}
	d.sink.Notify(a)
	d.log.Debugw("alert dispatched", "kind", a.Kind, "title", a.Title)
}

func formatAmount(inv domain.Invoice) string {
	return fmt.Sprintf("%.2f %s", float64(inv.AmountCents)/100, inv.Currency)
}
