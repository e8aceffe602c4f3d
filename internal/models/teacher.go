package models

import "time"

// Teacher represents an instructor record. A teacher may belong to several
// classrooms through the membership set and can additionally be the main
// teacher of classrooms pointing back at it.
type Teacher struct {
	ID        string     `db:"id" json:"id"`
	AccountID *string    `db:"account_id" json:"account_id,omitempty"`
	FullName  string     `db:"full_name" json:"full_name"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone"`
	Address   *string    `db:"address" json:"address,omitempty"`
	CourseID  *string    `db:"course_id" json:"course_id,omitempty"`
	Image     *string    `db:"image" json:"image,omitempty"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Status    string
	CourseID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// TeacherDetail extends Teacher with course and classroom context.
type TeacherDetail struct {
	Teacher
	CourseName *string               `db:"course_name" json:"course_name,omitempty"`
	ClassRooms []ClassRoomMembership `json:"class_rooms"`
}

// ClassRoomMembership is one entry of a teacher's membership set.
type ClassRoomMembership struct {
	ClassRoomID   string `db:"class_room_id" json:"class_room_id"`
	ClassRoomName string `db:"class_room_name" json:"class_room_name"`
	MainTeacher   bool   `db:"main_teacher" json:"main_teacher"`
}

// AssignmentConflict describes an existing assignment that blocks a new one:
// another live teacher of the same course already teaches the classroom.
type AssignmentConflict struct {
	TeacherID     string `db:"teacher_id"`
	TeacherName   string `db:"teacher_name"`
	CourseName    string `db:"course_name"`
	ClassRoomName string `db:"class_room_name"`
}
