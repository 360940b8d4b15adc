package auth

import "github.com/google/uuid"

// Role distinguishes the two trust levels in the anonymous classroom model.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Identity is the verified view of a bearer token, constructed once per
// request and never persisted.
type Identity struct {
	Username string     `json:"username"`
	Role     Role       `json:"role"`
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

// Anonymous is the zero-privilege identity used for unauthenticated reads.
var Anonymous = Identity{Role: RoleStudent}

// IsAnonymous reports whether the identity carries no verified username.
func (i Identity) IsAnonymous() bool {
	return i.Username == ""
}

// IsTeacher reports whether the identity holds the teacher role.
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

// Owns reports whether the identity may act as the given resource owner.
func (i Identity) Owns(username string) bool {
	return !i.IsAnonymous() && i.Username == username
}
