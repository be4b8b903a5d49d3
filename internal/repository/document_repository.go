package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByUserID(userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) MarkIndexed(id uint, indexed bool) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Update("indexed", indexed).Error; err != nil {
		return fmt.Errorf("mark document indexed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByStoredFilename(userID uint, storedFilename string) error {
	if err := r.db.Where("user_id = ? AND stored_filename = ?", userID, storedFilename).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByUserID(userID uint) error {
	if err := r.db.Where("user_id = ?", userID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete documents by user failed: %w", err)
	}
	return nil
}
