package domain

import "time"

// Role identifies which side of the portal an actor is on. The same value is
// carried as the sender of a chat message and as the "by" attribute on
// appointment events.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

type ChatMessage struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId,omitempty"`
	Sender    Role      `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
