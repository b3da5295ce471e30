package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrTokenRevoked is returned when a conditional revoke touches zero
	// rows, meaning another request already revoked the record.
	ErrTokenRevoked = errors.New("refresh token already revoked")
)
