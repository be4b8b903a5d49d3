package model

import "time"

// IndexEvent is an audit row recording one mutation of a tenant's index:
// an ingest, a delete, or the rebuild they triggered. Rows are written
// asynchronously by the index-event worker.
type IndexEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Action        string    `gorm:"size:32;not null" json:"action"`
	Filename      string    `gorm:"size:256" json:"filename"`
	DocumentCount int       `json:"document_count"`
	Succeeded     bool      `json:"succeeded"`
	CreatedAt     time.Time `json:"created_at"`
}
