package storage

import "errors"

// Sentinel errors shared by the memory, PostgreSQL and ClickHouse stores.
// Backends wrap them with detail; callers match with errors.Is.
var (
	// ErrNotFound means no run or row matches the lookup.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means the key is already stored. Runs and evaluation
	// rows are written once and never updated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput means a record failed validation or references a
	// run that was never stored.
	ErrInvalidInput = errors.New("invalid input")
)
