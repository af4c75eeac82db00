package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)
