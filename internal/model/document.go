package model

import "time"

// Document is the bookkeeping row for one uploaded file. The stored filename
// carries a random prefix so two uploads with the same original name never
// overwrite each other inside the tenant directory.
type Document struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	OriginalFilename string    `gorm:"size:256;not null" json:"original_filename"`
	StoredFilename   string    `gorm:"size:256;not null" json:"stored_filename"`
	Path             string    `gorm:"size:512;not null" json:"path"`
	Size             int64     `json:"size"`
	ContentType      string    `gorm:"size:128" json:"content_type"`
	Indexed          bool      `json:"indexed"`
	CreatedAt        time.Time `json:"created_at"`
}
