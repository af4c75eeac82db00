package stubserver

import (
	"net/http"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	jsonutil "github.com/curalink/portal-core/internal/infrastructure/json"
	"github.com/curalink/portal-core/internal/socket"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev harness: any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (app *Application) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.log.Warnw("ws upgrade failed", "err", err)
		return
	}

	cl := newClient(conn, app.hub, app.messages)
	app.hub.register <- cl

	go cl.writePump()
	go cl.readPump()
}

func (app *Application) getPatientHandler(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")

	patient, ok := app.patients.Get(patientID)
	if !ok {
		jsonutil.WriteNotFoundError(w, "patient not found")
		return
	}

	snap := domain.PatientSnapshot{
		Patient:      patient,
		Appointments: app.appointments.ByPatient(patientID),
		Procedures:   app.patients.Procedures(patientID),
		Invoices:     app.patients.Invoices(patientID),
		Messages:     app.messages.ByPatient(patientID),
	}

	jsonutil.WriteJSON(w, http.StatusOK, snap)
}

func (app *Application) cancelAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentId")

	appt, ok := app.appointments.Cancel(id)
	if !ok {
		jsonutil.WriteNotFoundError(w, "appointment not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)

	app.hub.BroadcastToPatient(appt.PatientID, socket.EventAppointmentCancelled, socket.AppointmentCancelledPayload{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		By:            actorFrom(r),
	})
}

type rescheduleRequest struct {
	Datetime time.Time `json:"datetime"`
}

func (app *Application) rescheduleAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentId")

	var req rescheduleRequest
	if err := jsonDecode(r, &req); err != nil || req.Datetime.IsZero() {
		jsonutil.WriteBadRequestError(w, "datetime required")
		return
	}

	appt, ok := app.appointments.Reschedule(id, req.Datetime)
	if !ok {
		jsonutil.WriteNotFoundError(w, "appointment not found")
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, appt)

	app.hub.BroadcastToPatient(appt.PatientID, socket.EventAppointmentUpdate, socket.AppointmentEventPayload{
		Appointment: appt,
		By:          actorFrom(r),
	})
}

// actorFrom reads the acting role from the X-Actor header; CRUD calls made
// by the patient app tag themselves, staff tooling defaults to doctor.
func actorFrom(r *http.Request) domain.Role {
	if role := domain.Role(r.Header.Get("X-Actor")); role.Valid() {
		return role
	}
	return domain.RoleDoctor
}
