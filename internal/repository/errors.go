package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateKey is returned when inserting an entity whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConflict is returned when a conditional update finds the entity in an unexpected state.
	ErrConflict = errors.New("state conflict")
)
