package domain

import "time"

type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "open"
	InvoiceStatusPaid InvoiceStatus = "paid"
)

type Invoice struct {
	ID          string        `json:"id"`
	PatientID   string        `json:"patientId"`
	AmountCents int64         `json:"amountCents"`
	Currency    string        `json:"currency"`
	Status      InvoiceStatus `json:"status"`
	IssuedAt    time.Time     `json:"issuedAt"`
	PaidAt      *time.Time    `json:"paidAt,omitempty"`
}

type Procedure struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patientId"`
	Name        string     `json:"name"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
