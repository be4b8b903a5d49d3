package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
)

type PreferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Upsert creates or updates the preference row for (userID, modelID). When
// isDefault is set, every other default for the user is cleared inside the
// same transaction, so at most one default exists at any time.
func (r *PreferenceRepository) Upsert(userID, modelID uint, apiKey string, isDefault bool) (*model.ModelPreference, error) {
	var pref model.ModelPreference
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if isDefault {
			if err := tx.Model(&model.ModelPreference{}).
				Where("user_id = ? AND is_default = ?", userID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		err := tx.Where("user_id = ? AND model_id = ?", userID, modelID).First(&pref).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			pref = model.ModelPreference{
				UserID:    userID,
				ModelID:   modelID,
				APIKey:    apiKey,
				IsDefault: isDefault,
			}
			return tx.Create(&pref).Error
		case err != nil:
			return err
		default:
			pref.APIKey = apiKey
			pref.IsDefault = isDefault
			return tx.Save(&pref).Error
		}
	})
	if err != nil {
		return nil, fmt.Errorf("upsert model preference failed: %w", err)
	}
	return &pref, nil
}

func (r *PreferenceRepository) ListByUserID(userID uint) ([]model.ModelPreference, error) {
	var list []model.ModelPreference
	if err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list model preferences failed: %w", err)
	}
	return list, nil
}

func (r *PreferenceRepository) GetDefault(userID uint) (*model.ModelPreference, error) {
	var pref model.ModelPreference
	if err := r.db.Where("user_id = ? AND is_default = ?", userID, true).First(&pref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default model preference failed: %w", err)
	}
	return &pref, nil
}

func (r *PreferenceRepository) DeleteByID(id, userID uint) (bool, error) {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.ModelPreference{})
	if res.Error != nil {
		return false, fmt.Errorf("delete model preference failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteByModelID removes every preference pointing at a descriptor; called
// when a custom descriptor is deleted.
func (r *PreferenceRepository) DeleteByModelID(modelID uint) error {
	if err := r.db.Where("model_id = ?", modelID).Delete(&model.ModelPreference{}).Error; err != nil {
		return fmt.Errorf("delete preferences by model failed: %w", err)
	}
	return nil
}

func (r *PreferenceRepository) DeleteByUserID(userID uint) error {
	if err := r.db.Where("user_id = ?", userID).Delete(&model.ModelPreference{}).Error; err != nil {
		return fmt.Errorf("delete preferences by user failed: %w", err)
	}
	return nil
}
