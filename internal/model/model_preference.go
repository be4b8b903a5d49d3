package model

import "time"

// ModelPreference is one tenant's selection of an AIModel plus an optional
// tenant-supplied API key. At most one preference per tenant is the default;
// setting a new default clears the others.
type ModelPreference struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ModelID   uint      `gorm:"not null;index" json:"model_id"`
	APIKey    string    `gorm:"size:512" json:"-"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
