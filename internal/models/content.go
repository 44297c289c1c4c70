package models

import "time"

// Content is an uploaded file (PDF or image) attached to a batch.
type Content struct {
	ID          string     `db:"id" json:"id"`
	BatchID     string     `db:"batch_id" json:"batch_id"`
	UploadedBy  string     `db:"uploaded_by" json:"uploaded_by"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description,omitempty"`
	FileName    string     `db:"file_name" json:"file_name"`
	FilePath    string     `db:"file_path" json:"-"`
	MimeType    string     `db:"mime_type" json:"mime_type"`
	SizeBytes   int64      `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

// ContentFilter defines filter criteria for listing contents.
type ContentFilter struct {
	BatchID  string
	MimeType string
	Search   string
}

// ContentDownload is returned when a signed download URL is issued.
type ContentDownload struct {
	ContentID string    `json:"content_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
