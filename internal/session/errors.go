package session

import "errors"

var (
	ErrSessionClosed    = errors.New("session is closed")
	ErrQueueFull        = errors.New("session task queue is full")
	ErrInvalidSessionID = errors.New("invalid session ID")
	ErrRegistryClosed   = errors.New("session registry is closed")
)
