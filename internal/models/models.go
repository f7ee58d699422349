// Package models defines data structures used throughout the issue tracker.
package models

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// Role is a user's role. Every visibility decision keys off it.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleMentor, RoleAdmin:
		return true
	}
	return false
}

// IsStaff is true for mentors and admins
func (r Role) IsStaff() bool {
	return r == RoleMentor || r == RoleAdmin
}

// Display returns the human readable role name
func (r Role) Display() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleMentor:
		return "Mentor"
	case RoleAdmin:
		return "Admin"
	}
	return string(r)
}

// User represents a user in the system
type User struct {
	ID           int64          `json:"id" yaml:"id"`
	Username     string         `json:"username" yaml:"username"`
	Email        sql.NullString `json:"email" yaml:"email"`
	FirstName    string         `json:"first_name" yaml:"first_name"`
	LastName     string         `json:"last_name" yaml:"last_name"`
	Role         Role           `json:"role" yaml:"role"`
	Cohort       string         `json:"cohort" yaml:"cohort"`
	PasswordHash sql.NullString `json:"-" yaml:"-"`
	IsActive     bool           `json:"is_active" yaml:"is_active"`
	DateJoined   time.Time      `json:"date_joined" yaml:"date_joined"`
	LastLogin    sql.NullTime   `json:"last_login" yaml:"last_login"`
}

// FullName is "first last", falling back to the username
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// MarshalJSON flattens the sql.Null fields and adds the derived name
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID         int64      `json:"id"`
		Username   string     `json:"username"`
		Email      *string    `json:"email"`
		FirstName  string     `json:"first_name"`
		LastName   string     `json:"last_name"`
		FullName   string     `json:"full_name"`
		Role       Role       `json:"role"`
		Cohort     string     `json:"cohort"`
		IsActive   bool       `json:"is_active"`
		DateJoined time.Time  `json:"date_joined"`
		LastLogin  *time.Time `json:"last_login"`
	}{
		ID:         u.ID,
		Username:   u.Username,
		Email:      NullStringToPointer(u.Email),
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		FullName:   u.FullName(),
		Role:       u.Role,
		Cohort:     u.Cohort,
		IsActive:   u.IsActive,
		DateJoined: u.DateJoined,
		LastLogin:  NullTimeToPointer(u.LastLogin),
	})
}

// UserBrief is the nested user shape embedded in issue, comment and
// attachment responses.
type UserBrief struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	Cohort    string `json:"cohort"`
}

// Brief converts a full user into the nested shape
func (u User) Brief() UserBrief {
	return UserBrief{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role, Cohort: u.Cohort}
}

// Helper functions for converting sql.Null types to pointers
func NullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func NullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func NullInt64ToPointer(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// NullInt64 builds a sql.NullInt64 from an optional id
func NullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// SameNullInt64 compares two nullable ids by value
func SameNullInt64(a, b sql.NullInt64) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Int64 == b.Int64
}
