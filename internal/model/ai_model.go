package model

import "time"

// AIModel describes a language-model backend: which provider answers the
// call, the concrete model id, and where its API lives. Built-in rows are
// seeded once at startup and cannot be changed by tenants; custom rows belong
// to the user who created them.
type AIModel struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:128;not null" json:"name"`
	Provider        string    `gorm:"size:64;not null" json:"provider"`
	ModelID         string    `gorm:"size:128;not null" json:"model_id"`
	APIBaseURL      string    `gorm:"size:256" json:"api_base_url"`
	Description     string    `gorm:"type:text" json:"description"`
	IsBuiltIn       bool      `json:"is_built_in"`
	CreatedByUserID uint      `gorm:"index" json:"created_by_user_id"` // 0 for built-ins
	CreatedAt       time.Time `json:"created_at"`
}
