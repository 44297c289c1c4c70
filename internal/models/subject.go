package models

import "time"

// Subject is a teachable unit owned by a business and attachable to courses.
type Subject struct {
	ID         string     `db:"id" json:"id"`
	BusinessID string     `db:"business_id" json:"business_id"`
	Name       string     `db:"name" json:"name"`
	Code       string     `db:"code" json:"code,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"-"`
}

// SubjectFilter defines filter criteria for listing subjects.
type SubjectFilter struct {
	BusinessID string
	Search     string
}
