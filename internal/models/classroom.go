package models

import "time"

// ClassRoom represents a scheduled class. TeacherID, when set, is the main
// teacher and must be a member of the classroom's teacher set.
type ClassRoom struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	CourseID  string     `db:"course_id" json:"course_id"`
	TeacherID *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   time.Time  `db:"end_date" json:"end_date"`
	Schedule  string     `db:"schedule" json:"schedule"`
	Location  *string    `db:"location" json:"location,omitempty"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// ClassRoomFilter defines filter criteria for listing classrooms.
type ClassRoomFilter struct {
	Search    string
	CourseID  string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassRoomDetail extends ClassRoom with resolved names, the teacher
// membership set and the enrolled students.
type ClassRoomDetail struct {
	ClassRoom
	CourseName  *string         `db:"course_name" json:"course_name,omitempty"`
	TeacherName *string         `db:"teacher_name" json:"teacher_name,omitempty"`
	Teachers    []TeacherMember `json:"teachers"`
	Students    []Student       `json:"students"`
}

// TeacherMember is one entry of a classroom's teacher membership set.
type TeacherMember struct {
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	FullName    string `db:"full_name" json:"full_name"`
	MainTeacher bool   `db:"main_teacher" json:"main_teacher"`
}

// RosterCandidate is a student eligible for roster selection: either
// unassigned or already enrolled in the classroom under edit.
type RosterCandidate struct {
	Student
	Selected bool `json:"selected"`
}

// RosterSelection is one submitted roster entry. The submitted set covers
// every candidate; membership is recomputed from it wholesale.
type RosterSelection struct {
	StudentID string `json:"student_id" validate:"required"`
	Selected  bool   `json:"selected"`
}
