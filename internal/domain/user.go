package domain

import "time"

// User represents an end user that can authenticate within an organization.
// System admins carry no organization (OrgID == 0).
type User struct {
	ID            int64
	OrgID         int64
	Email         string
	EmailVerified bool
	PasswordHash  string
	IsActive      bool
	IsSystemAdmin bool
	Role          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasOrg reports whether the user belongs to an organization.
func (u User) HasOrg() bool {
	return u.OrgID != 0
}
