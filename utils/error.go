package utils

import "errors"

// Error kinds shared across the models package. Callers match with errors.Is;
// the HTTP layer maps them onto status codes.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
