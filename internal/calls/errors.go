package calls

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for a call id
	ErrSessionNotFound = errors.New("call session not found")

	// ErrStatusNotFound is returned when no status has been tracked for a provider call SID
	ErrStatusNotFound = errors.New("call status not found")

	// ErrMissingPhone is returned when a call request has no destination number
	ErrMissingPhone = errors.New("phone is required")

	// ErrMissingPatientName is returned when a call request has no patient name
	ErrMissingPatientName = errors.New("patient_name is required")

	// ErrMissingDate is returned when a call request has no appointment date
	ErrMissingDate = errors.New("date is required")

	// ErrMissingTime is returned when a call request has no appointment time
	ErrMissingTime = errors.New("time is required")
)
