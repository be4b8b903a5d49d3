package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aken1023/llamaindex-faiss-system1/internal/app"
	"github.com/aken1023/llamaindex-faiss-system1/internal/transport/http/response"
)

const defaultTopK = 5

type QueryHandler struct {
	knowledge *app.KnowledgeService
}

type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

func NewQueryHandler(knowledge *app.KnowledgeService) *QueryHandler {
	return &QueryHandler{knowledge: knowledge}
}

// Ask retrieves relevant documents for the caller and generates a grounded
// answer. Provider and retrieval failures come back as answers, not errors.
func (h *QueryHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	result, err := h.knowledge.Ask(c.Request.Context(), userID, req.Query, topK)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		}
		return
	}

	response.OK(c, result)
}

// Search returns raw similarity hits without generation.
func (h *QueryHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	results, err := h.knowledge.Search(c.Request.Context(), userID, req.Query, topK)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search failed")
		}
		return
	}
	if results == nil {
		results = []app.SearchResult{}
	}

	response.OK(c, gin.H{"query": req.Query, "results": results})
}

// Capabilities reports which engine features the deployment currently offers.
func (h *QueryHandler) Capabilities(c *gin.Context) {
	response.OK(c, gin.H{
		"generation_available": h.knowledge.GenerationAvailable(),
		"search_available":     true,
	})
}
