package app

import (
	"errors"
	"strings"

	"github.com/aken1023/llamaindex-faiss-system1/internal/ai"
	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
	"github.com/aken1023/llamaindex-faiss-system1/internal/repository"
)

var (
	ErrModelNotFound      = errors.New("model not found")
	ErrPreferenceNotFound = errors.New("model preference not found")
)

// ModelService manages model descriptors and per-tenant preferences. It also
// implements ai.PreferenceResolver for the generation router.
type ModelService struct {
	modelRepo *repository.AIModelRepository
	prefRepo  *repository.PreferenceRepository
}

func NewModelService(modelRepo *repository.AIModelRepository, prefRepo *repository.PreferenceRepository) *ModelService {
	return &ModelService{
		modelRepo: modelRepo,
		prefRepo:  prefRepo,
	}
}

// SeedBuiltIns inserts the built-in descriptors once; existing rows are left
// alone so restarts are idempotent.
func (s *ModelService) SeedBuiltIns() error {
	builtins := []model.AIModel{
		{
			Name:        "DeepSeek Chat",
			Provider:    "deepseek",
			ModelID:     "deepseek-chat",
			APIBaseURL:  "https://api.deepseek.com",
			Description: "DeepSeek chat model, suited for conversation and reasoning",
			IsBuiltIn:   true,
		},
		{
			Name:        "OpenAI GPT-4",
			Provider:    "openai",
			ModelID:     "gpt-4",
			APIBaseURL:  "https://api.openai.com/v1",
			Description: "OpenAI GPT-4, a powerful general-purpose model",
			IsBuiltIn:   true,
		},
		{
			Name:        "OpenAI GPT-3.5 Turbo",
			Provider:    "openai",
			ModelID:     "gpt-3.5-turbo",
			APIBaseURL:  "https://api.openai.com/v1",
			Description: "OpenAI GPT-3.5 Turbo, fast and cost-effective",
			IsBuiltIn:   true,
		},
		{
			Name:        "Claude 3 Sonnet",
			Provider:    "anthropic",
			ModelID:     "claude-3-sonnet-20240229",
			APIBaseURL:  "https://api.anthropic.com",
			Description: "Anthropic Claude 3 Sonnet, balanced performance and speed",
			IsBuiltIn:   true,
		},
	}

	for i := range builtins {
		existing, err := s.modelRepo.GetBuiltInByModelID(builtins[i].ModelID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.modelRepo.Create(&builtins[i]); err != nil {
			return err
		}
		logger.Infof("seeded built-in model %s", builtins[i].Name)
	}
	return nil
}

func (s *ModelService) ListAvailable(userID uint) ([]model.AIModel, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.modelRepo.ListAvailable(userID)
}

type CreateCustomModelInput struct {
	Name        string
	Provider    string
	ModelID     string
	APIBaseURL  string
	Description string
}

func (s *ModelService) CreateCustom(userID uint, input CreateCustomModelInput) (*model.AIModel, error) {
	name := strings.TrimSpace(input.Name)
	provider := strings.TrimSpace(strings.ToLower(input.Provider))
	modelID := strings.TrimSpace(input.ModelID)
	if userID == 0 || name == "" || provider == "" || modelID == "" {
		return nil, ErrInvalidInput
	}

	m := &model.AIModel{
		Name:            name,
		Provider:        provider,
		ModelID:         modelID,
		APIBaseURL:      strings.TrimSpace(input.APIBaseURL),
		Description:     strings.TrimSpace(input.Description),
		IsBuiltIn:       false,
		CreatedByUserID: userID,
	}
	if err := s.modelRepo.Create(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteCustom removes a custom descriptor owned by userID and every
// preference pointing at it. Built-ins are immutable and never match.
func (s *ModelService) DeleteCustom(userID, modelID uint) error {
	if userID == 0 || modelID == 0 {
		return ErrInvalidInput
	}
	if err := s.prefRepo.DeleteByModelID(modelID); err != nil {
		return err
	}
	deleted, err := s.modelRepo.DeleteCustom(modelID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrModelNotFound
	}
	return nil
}

// SetPreference stores a tenant's choice of a visible descriptor. Setting a
// default clears the tenant's previous default.
func (s *ModelService) SetPreference(userID, modelID uint, apiKey string, isDefault bool) (*model.ModelPreference, error) {
	if userID == 0 || modelID == 0 {
		return nil, ErrInvalidInput
	}

	m, err := s.modelRepo.GetByID(modelID)
	if err != nil {
		return nil, err
	}
	if m == nil || (!m.IsBuiltIn && m.CreatedByUserID != userID) {
		return nil, ErrModelNotFound
	}

	return s.prefRepo.Upsert(userID, modelID, strings.TrimSpace(apiKey), isDefault)
}

func (s *ModelService) ListPreferences(userID uint) ([]model.ModelPreference, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.prefRepo.ListByUserID(userID)
}

// GetDefaultPreference returns the tenant's default preference row, or nil
// when none is set.
func (s *ModelService) GetDefaultPreference(userID uint) (*model.ModelPreference, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.prefRepo.GetDefault(userID)
}

func (s *ModelService) DeletePreference(userID, preferenceID uint) error {
	if userID == 0 || preferenceID == 0 {
		return ErrInvalidInput
	}
	deleted, err := s.prefRepo.DeleteByID(preferenceID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrPreferenceNotFound
	}
	return nil
}

// DefaultModel resolves the tenant's default preference for the generation
// router. A preference pointing at a deleted descriptor resolves to nil so
// the router falls back to the system default.
func (s *ModelService) DefaultModel(userID uint) (*ai.ResolvedPreference, error) {
	pref, err := s.prefRepo.GetDefault(userID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		return nil, nil
	}

	m, err := s.modelRepo.GetByID(pref.ModelID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		logger.Warnf("default preference of user %d references deleted model %d", userID, pref.ModelID)
		return nil, nil
	}

	return &ai.ResolvedPreference{
		Descriptor: ai.Descriptor{
			Provider:   m.Provider,
			ModelID:    m.ModelID,
			APIBaseURL: m.APIBaseURL,
		},
		APIKey: pref.APIKey,
	}, nil
}
