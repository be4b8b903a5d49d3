package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aken1023/llamaindex-faiss-system1/internal/app"
	"github.com/aken1023/llamaindex-faiss-system1/internal/transport/http/response"
)

type ModelHandler struct {
	modelService *app.ModelService
}

type CreateModelRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Provider    string `json:"provider" binding:"required,max=64"`
	ModelID     string `json:"model_id" binding:"required,max=128"`
	APIBaseURL  string `json:"api_base_url" binding:"max=256"`
	Description string `json:"description" binding:"max=512"`
}

type SetPreferenceRequest struct {
	ModelID   uint   `json:"model_id" binding:"required"`
	APIKey    string `json:"api_key"`
	IsDefault bool   `json:"is_default"`
}

func NewModelHandler(modelService *app.ModelService) *ModelHandler {
	return &ModelHandler{modelService: modelService}
}

func (h *ModelHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	models, err := h.modelService.ListAvailable(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list models failed")
		return
	}

	response.OK(c, models)
}

func (h *ModelHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	m, err := h.modelService.CreateCustom(userID, app.CreateCustomModelInput{
		Name:        req.Name,
		Provider:    req.Provider,
		ModelID:     req.ModelID,
		APIBaseURL:  req.APIBaseURL,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create model failed")
		}
		return
	}

	response.OK(c, m)
}

func (h *ModelHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	modelID, err := parseUintParam(c, "id")
	if err != nil || modelID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid model id")
		return
	}

	if err := h.modelService.DeleteCustom(userID, modelID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrModelNotFound):
			response.Error(c, http.StatusNotFound, response.CodeModelNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete model failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_model_id": modelID})
}

func (h *ModelHandler) ListPreferences(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	prefs, err := h.modelService.ListPreferences(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list preferences failed")
		return
	}

	response.OK(c, prefs)
}

func (h *ModelHandler) SetPreference(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SetPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	pref, err := h.modelService.SetPreference(userID, req.ModelID, req.APIKey, req.IsDefault)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrModelNotFound):
			response.Error(c, http.StatusNotFound, response.CodeModelNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "set preference failed")
		}
		return
	}

	response.OK(c, pref)
}

func (h *ModelHandler) GetDefaultPreference(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	pref, err := h.modelService.GetDefaultPreference(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get default preference failed")
		return
	}
	if pref == nil {
		response.Error(c, http.StatusNotFound, response.CodePreferenceNotFound, "no default preference set")
		return
	}

	response.OK(c, pref)
}

func (h *ModelHandler) DeletePreference(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	prefID, err := parseUintParam(c, "id")
	if err != nil || prefID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid preference id")
		return
	}

	if err := h.modelService.DeletePreference(userID, prefID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrPreferenceNotFound):
			response.Error(c, http.StatusNotFound, response.CodePreferenceNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete preference failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_preference_id": prefID})
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	s := c.Param(key)
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}
