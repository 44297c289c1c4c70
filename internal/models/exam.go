package models

import "time"

// Exam is owned by a business and groups courses preparing for it.
type Exam struct {
	ID          string     `db:"id" json:"id"`
	BusinessID  string     `db:"business_id" json:"business_id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

// ExamFilter defines filter criteria for listing exams.
type ExamFilter struct {
	BusinessID string
	Search     string
}
