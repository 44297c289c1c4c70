package models

import "time"

// Course belongs to an exam and carries subject mappings and batches.
type Course struct {
	ID           string     `db:"id" json:"id"`
	ExamID       string     `db:"exam_id" json:"exam_id"`
	Name         string     `db:"name" json:"name"`
	Description  string     `db:"description" json:"description,omitempty"`
	Price        float64    `db:"price" json:"price"`
	DurationDays int        `db:"duration_days" json:"duration_days"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	ExamID     string
	BusinessID string
	Search     string
}

// CourseSubject maps a subject onto a course.
type CourseSubject struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseSubjectDetail joins subject info for responses.
type CourseSubjectDetail struct {
	CourseSubject
	SubjectName string `db:"subject_name" json:"subject_name"`
}
