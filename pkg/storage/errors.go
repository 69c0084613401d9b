package storage

import "errors"

var (
	// ErrNotFound indicates no blob exists at the key.
	ErrNotFound = errors.New("blob not found")
	// ErrEmptyKey indicates an empty key.
	ErrEmptyKey = errors.New("empty storage key")
	// ErrInvalidKey indicates a key that is not a clean relative path.
	ErrInvalidKey = errors.New("invalid storage key")
)
