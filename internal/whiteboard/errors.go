package whiteboard

import "errors"

// Rejected operations are no-ops for the session: the canonical map and the
// version counter are left untouched.
var (
	ErrUnknownElement   = errors.New("operation references an unknown element ID")
	ErrDuplicateElement = errors.New("element ID already exists")
	ErrMissingElement   = errors.New("operation requires an element")
	ErrInvalidAction    = errors.New("invalid whiteboard action")
)
