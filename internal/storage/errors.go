package storage

import "errors"

// Common storage errors
var (
	ErrNotFound       = errors.New("not found")
	ErrVersionExists  = errors.New("state version already committed")
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrReportRequired = errors.New("report id and payload are required")
)
