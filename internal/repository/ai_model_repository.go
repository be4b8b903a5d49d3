package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
)

type AIModelRepository struct {
	db *gorm.DB
}

func NewAIModelRepository(db *gorm.DB) *AIModelRepository {
	return &AIModelRepository{db: db}
}

func (r *AIModelRepository) Create(m *model.AIModel) error {
	if err := r.db.Create(m).Error; err != nil {
		return fmt.Errorf("create ai model failed: %w", err)
	}
	return nil
}

func (r *AIModelRepository) GetByID(id uint) (*model.AIModel, error) {
	var m model.AIModel
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ai model failed: %w", err)
	}
	return &m, nil
}

// ListAvailable returns every built-in model plus the customs owned by userID.
func (r *AIModelRepository) ListAvailable(userID uint) ([]model.AIModel, error) {
	var list []model.AIModel
	if err := r.db.Where("is_built_in = ? OR created_by_user_id = ?", true, userID).
		Order("is_built_in DESC, id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list ai models failed: %w", err)
	}
	return list, nil
}

func (r *AIModelRepository) GetBuiltInByModelID(modelID string) (*model.AIModel, error) {
	var m model.AIModel
	if err := r.db.Where("model_id = ? AND is_built_in = ?", modelID, true).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get built-in ai model failed: %w", err)
	}
	return &m, nil
}

// DeleteCustom removes a custom model owned by userID. Built-ins never match.
func (r *AIModelRepository) DeleteCustom(id, userID uint) (bool, error) {
	res := r.db.Where("id = ? AND created_by_user_id = ? AND is_built_in = ?", id, userID, false).
		Delete(&model.AIModel{})
	if res.Error != nil {
		return false, fmt.Errorf("delete custom ai model failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
