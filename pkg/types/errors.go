package types

import "errors"

var (
	ErrInvalidUserID      = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidSessionID   = errors.New("session ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole        = errors.New("invalid role: must be 'learner', 'ai' or 'observer'")
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrEmptyMessage       = errors.New("message content cannot be empty")
	ErrMessageTooLarge    = errors.New("message content exceeds 16KB limit")
	ErrInvalidElement     = errors.New("whiteboard element is missing or has no ID")
	ErrInvalidAction      = errors.New("invalid whiteboard action")
)
