package quiz

import "errors"

// ErrMalformed reports generator output that does not form a usable quiz.
var ErrMalformed = errors.New("malformed quiz")
