package database

import "errors"

var (
	// ErrStoreClosed is returned for writes attempted after Close.
	ErrStoreClosed = errors.New("store is closed")
)
