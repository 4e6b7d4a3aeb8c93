package interfaces

import "errors"

// Shared sentinels crossed between components and collaborators.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("user not authorized for this session")
)
