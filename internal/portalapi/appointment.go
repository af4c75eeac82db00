package portalapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/curalink/portal-core/internal/domain"
)

type AppointmentService struct {
	client *Client
}

// Cancel issues the DELETE. A nil return means the server accepted the
// cancellation and the caller may drop the appointment locally.
func (s *AppointmentService) Cancel(ctx context.Context, appointmentID string) error {
	if appointmentID == "" {
		return ErrMissingIDParameter
	}

	path := fmt.Sprintf("/appointments/%s", appointmentID)
	return s.client.do(ctx, http.MethodDelete, path, nil, nil)
}

type RescheduleParam struct {
	Datetime time.Time `json:"datetime"`
}

// Reschedule moves the appointment; the confirmed record comes back and is
// also broadcast to the room.
func (s *AppointmentService) Reschedule(ctx context.Context, appointmentID string, to time.Time) (*domain.Appointment, error) {
	if appointmentID == "" {
		return nil, ErrMissingIDParameter
	}

	appt := &domain.Appointment{}
	path := fmt.Sprintf("/appointments/%s/reschedule", appointmentID)
	if err := s.client.do(ctx, http.MethodPost, path, RescheduleParam{Datetime: to}, appt); err != nil {
		return nil, err
	}

	return appt, nil
}
