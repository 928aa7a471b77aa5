package domain

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("access to conversation denied")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("temporarily unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
