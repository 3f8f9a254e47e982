// Package models defines the messenger's domain types: the rows of its
// tables and the shapes of API requests and responses.
//
// Users themselves live in the cabinet back-office. The messenger only sees
// the id and role carried in the access token.
package models

import "fmt"

// Role is the cabinet role of the caller.
type Role string

const (
	RoleClient         Role = "client"
	RoleAgent          Role = "agent"
	RoleRepresentative Role = "representative"
	RoleAdmin          Role = "admin"
	RoleSupport        Role = "support"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAgent, RoleRepresentative, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

// IsStaff reports whether the role may moderate: delete other people's
// messages, manage any chat, and work support tickets.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSupport
}

// User is the authenticated caller, built from the access token.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// NewUser validates the token subject and role.
func NewUser(id string, role Role) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return &User{ID: id, Role: role}, nil
}
