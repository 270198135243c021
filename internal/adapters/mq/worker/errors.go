package worker

import "errors"

// ErrShutdown is the outcome error of jobs left in the queue at shutdown.
var ErrShutdown = errors.New("worker pool shut down")
