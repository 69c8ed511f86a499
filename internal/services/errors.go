package services

import "errors"

var (
	// ErrNotFound marks a missing referenced entity (connector, tariff,
	// location, checkout, EVSE). Synchronous callers surface it as a 404;
	// the event consumer logs and drops.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a contradictory duplicate write; the first write
	// wins and the conflicting one is rejected.
	ErrConflict = errors.New("conflict")

	// ErrValidation marks a malformed payload or failed signature check.
	ErrValidation = errors.New("validation failed")

	// ErrExternalService marks an infrastructure failure of the payment
	// processor or the charge-point management system.
	ErrExternalService = errors.New("external service failure")
)
