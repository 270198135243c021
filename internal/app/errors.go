package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrConceptNotFound  = errors.New("concept not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotStarted       = errors.New("service not started")
)
