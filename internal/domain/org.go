package domain

import "time"

// Organization represents a tenant. Slug is globally unique and enforced by
// a unique constraint in addition to the pre-insert availability check.
type Organization struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SlugAvailability is the result of an availability query. When the slug is
// taken or malformed, Errors explains why and Suggestions offers free
// alternatives.
type SlugAvailability struct {
	IsAvailable bool
	Errors      []string
	Suggestions []string
}
