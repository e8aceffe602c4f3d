package models

import "time"

// AccountRole represents the available roles for access control.
type AccountRole string

const (
	RoleAdmin   AccountRole = "ADMIN"
	RoleTeacher AccountRole = "TEACHER"
	RoleStudent AccountRole = "STUDENT"
)

// Account represents a login identity stored in the accounts table.
type Account struct {
	ID           string      `db:"id" json:"id"`
	Role         AccountRole `db:"role" json:"role"`
	Username     string      `db:"username" json:"username"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	Phone        *string     `db:"phone" json:"phone,omitempty"`
	Address      *string     `db:"address" json:"address,omitempty"`
	LastLogin    *time.Time  `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time  `db:"deleted_at" json:"-"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
