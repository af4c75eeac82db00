package domain

import "time"

type AppointmentType string

const (
	AppointmentTypeConsultation AppointmentType = "consultation"
	AppointmentTypeProcedure    AppointmentType = "procedure"
	AppointmentTypeFollowUp     AppointmentType = "follow_up"
	AppointmentTypeCheckup      AppointmentType = "checkup"
)

type Appointment struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Datetime    time.Time       `json:"datetime"`
	Location    string          `json:"location,omitempty"`
	Type        AppointmentType `json:"type"`
	PatientID   string          `json:"patientId"`
	IsCancelled bool            `json:"isCancelled"`
}

// IsUpcoming reports whether the appointment is still ahead of now and live.
// Computed per call because "now" keeps moving; never stored.
func (a Appointment) IsUpcoming(now time.Time) bool {
	return !a.IsCancelled && !a.Datetime.Before(now)
}
