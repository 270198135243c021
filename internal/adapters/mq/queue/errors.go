package queue

import "errors"

// ErrClosed is returned by Enqueue on a closed queue.
var ErrClosed = errors.New("queue closed")

// ErrFull is returned when the queue is at capacity.
var ErrFull = errors.New("queue full")
