package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAdmissionDenied        = errors.New("admission denied")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrDuplicateOperation     = errors.New("duplicate operation")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrRetryBudgetExhausted   = errors.New("retry budget exhausted")
	ErrInvalidInput           = errors.New("invalid input")
)
