package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("version conflict")
	ErrDuplicate     = errors.New("memory entry already exists for student and concept")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrUnknownDriver = errors.New("unknown store driver")
)
