package models

import "time"

// Student represents an enrolled student. ClassRoomID is null while the
// student is unassigned.
type Student struct {
	ID          string     `db:"id" json:"id"`
	AccountID   *string    `db:"account_id" json:"account_id,omitempty"`
	FullName    string     `db:"full_name" json:"full_name"`
	Email       string     `db:"email" json:"email"`
	Phone       string     `db:"phone" json:"phone"`
	Address     *string    `db:"address" json:"address,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	ClassRoomID *string    `db:"class_room_id" json:"class_room_id,omitempty"`
	Image       *string    `db:"image" json:"image,omitempty"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

// StudentFilter defines filter criteria for listing students.
type StudentFilter struct {
	Search      string
	Status      string
	ClassRoomID string
	Unassigned  bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
