package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aken1023/llamaindex-faiss-system1/internal/app"
	"github.com/aken1023/llamaindex-faiss-system1/internal/extract"
	"github.com/aken1023/llamaindex-faiss-system1/internal/transport/http/response"
)

type DocumentHandler struct {
	knowledge     *app.KnowledgeService
	maxUploadSize int64
}

func NewDocumentHandler(knowledge *app.KnowledgeService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{knowledge: knowledge, maxUploadSize: maxUploadSize}
}

// Upload accepts a multipart form with "file", stores it in the caller's
// knowledge base and rebuilds the caller's index.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, "file too large")
		return
	}
	if !extract.IsSupported(file.Filename) {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile,
			"unsupported file type, allowed: .txt .md .pdf .doc .docx")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	contentType := file.Header.Get("Content-Type")
	result, err := h.knowledge.IngestAndReindex(c.Request.Context(), userID, file.Filename, contentType, content)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.knowledge.ListDocuments(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}

	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	storedFilename := c.Param("filename")
	if err := h.knowledge.DeleteDocument(c.Request.Context(), userID, storedFilename); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid filename")
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_filename": storedFilename})
}

// Purge deletes every document and the whole index of the caller.
func (h *DocumentHandler) Purge(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.knowledge.PurgeTenant(userID); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "purge failed")
		return
	}

	response.OK(c, gin.H{"purged_user_id": userID})
}
