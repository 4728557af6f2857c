package queue

import "errors"

var (
	ErrUnknownHandler = errors.New("queue: no handler registered for job name")
	ErrQueueClosed    = errors.New("queue: closed")
)
