package database

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicateKey    = errors.New("duplicate idempotency key")
)
