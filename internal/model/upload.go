package model

import "time"

// UploadBatch records where a set of imported stock records came from.
type UploadBatch struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	UploadedBy *int64    `json:"uploaded_by,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`

	// Joined fields (not always populated).
	UploaderEmail string `json:"uploader_email,omitempty"`
	ItemCount     int    `json:"item_count"`
}
