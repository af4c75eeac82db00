package portalapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/curalink/portal-core/internal/domain"
)

func TestPatientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients/p-1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Fatalf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(domain.PatientSnapshot{
			Patient: domain.Patient{ID: "p-1", Name: "Ada"},
			Appointments: []domain.Appointment{
				{ID: "a-1", Title: "Checkup", PatientID: "p-1"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "sekrit"})

	snap, err := c.Patients.Get(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Patient.ID != "p-1" || len(snap.Appointments) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	if _, err := c.Patients.Get(context.Background(), ""); !errors.Is(err, ErrMissingIDParameter) {
		t.Fatalf("empty id: err = %v", err)
	}
}

func TestAppointmentCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/appointments/a-1" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if err := c.Appointments.Cancel(context.Background(), "a-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestAppointmentReschedule(t *testing.T) {
	to := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleParam
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Datetime.Equal(to) {
			t.Fatalf("body datetime = %v (%v)", req.Datetime, err)
		}
		json.NewEncoder(w).Encode(domain.Appointment{ID: "a-1", Datetime: to, PatientID: "p-1"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	appt, err := c.Appointments.Reschedule(context.Background(), "a-1", to)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !appt.Datetime.Equal(to) {
		t.Fatalf("datetime = %v", appt.Datetime)
	}
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "appointment not found"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	err := c.Appointments.Cancel(context.Background(), "a-404")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "appointment not found" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
