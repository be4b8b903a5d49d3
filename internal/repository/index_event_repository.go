package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
)

type IndexEventRepository struct {
	db *gorm.DB
}

func NewIndexEventRepository(db *gorm.DB) *IndexEventRepository {
	return &IndexEventRepository{db: db}
}

func (r *IndexEventRepository) Create(event *model.IndexEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create index event failed: %w", err)
	}
	return nil
}

func (r *IndexEventRepository) ListByUserID(userID uint, limit int) ([]model.IndexEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []model.IndexEvent
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list index events failed: %w", err)
	}
	return list, nil
}
