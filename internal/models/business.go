package models

import "time"

// Business is the top-level tenant owning exams, courses, and users.
type Business struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone,omitempty"`
	Address   string     `db:"address" json:"address,omitempty"`
	OwnerID   *string    `db:"owner_id" json:"owner_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// BusinessFilter defines filter criteria for listing businesses.
type BusinessFilter struct {
	Search string
}
