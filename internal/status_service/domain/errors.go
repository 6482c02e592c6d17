package domain

import "errors"

var (
	// ErrValidation indicates malformed input rejected before persistence.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates that the referenced status record does not exist.
	ErrNotFound = errors.New("status not found")
	// ErrStorage indicates a fault in the underlying persistence layer.
	ErrStorage = errors.New("storage failure")
	// ErrDeliveryFailure indicates that one realtime session could not receive a broadcast.
	ErrDeliveryFailure = errors.New("realtime delivery failed")
)
