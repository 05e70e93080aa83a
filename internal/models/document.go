package models

import "time"

// Document is a supporting file uploaded by a resident.
type Document struct {
	ID          string     `db:"id" json:"id"`
	AccountID   string     `db:"account_id" json:"-"`
	FileName    string     `db:"file_name" json:"fileName"`
	ContentType string     `db:"content_type" json:"contentType"`
	SizeBytes   int64      `db:"size_bytes" json:"sizeBytes"`
	StorageKey  string     `db:"storage_key" json:"-"`
	FaceCount   *int       `db:"face_count" json:"faceCount,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}

// AllowedDocumentTypes are the accepted MIME types for uploads.
var AllowedDocumentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}
