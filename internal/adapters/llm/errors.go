package llm

import "errors"

var (
	ErrNoBaseURL = errors.New("llm base url is empty")
	ErrUpstream  = errors.New("llm upstream error")
)
