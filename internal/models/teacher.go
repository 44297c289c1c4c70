package models

import "time"

// Teacher is a staff profile belonging to a business. The linked user account
// carries authentication; the profile carries institute-facing details.
type Teacher struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	BusinessID    string     `db:"business_id" json:"business_id"`
	Qualification string     `db:"qualification" json:"qualification,omitempty"`
	Experience    int        `db:"experience" json:"experience"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at" json:"-"`
}

// TeacherDetail joins the user account for responses.
type TeacherDetail struct {
	Teacher
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// TeacherFilter defines filter criteria for listing teachers.
type TeacherFilter struct {
	BusinessID string
	Search     string
}
