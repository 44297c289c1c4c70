package models

import "time"

// Batch is a scheduled group of students within a course.
type Batch struct {
	ID        string     `db:"id" json:"id"`
	CourseID  string     `db:"course_id" json:"course_id"`
	Name      string     `db:"name" json:"name"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	Capacity  int        `db:"capacity" json:"capacity"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// BatchFilter defines filter criteria for listing batches.
type BatchFilter struct {
	CourseID   string
	BusinessID string
	// TeacherUserID restricts results to batches where the user holds an
	// active teacher membership.
	TeacherUserID string
	Search        string
}

// BatchTeacher is the teacher-membership join record for a batch.
type BatchTeacher struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BatchStudent is the student-membership join record for a batch.
type BatchStudent struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BatchMemberDetail joins user info onto a membership row for responses and
// roster exports.
type BatchMemberDetail struct {
	ID       string `db:"id" json:"id"`
	BatchID  string `db:"batch_id" json:"batch_id"`
	UserID   string `db:"user_id" json:"user_id"`
	IsActive bool   `db:"is_active" json:"is_active"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}
