package domain

type Patient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PatientSnapshot is what GET /patients/{id} returns: everything the portal
// needs to render a patient, in one read.
type PatientSnapshot struct {
	Patient      Patient       `json:"patient"`
	Appointments []Appointment `json:"appointments"`
	Procedures   []Procedure   `json:"procedures"`
	Invoices     []Invoice     `json:"invoices"`
	Messages     []ChatMessage `json:"messages"`
}
