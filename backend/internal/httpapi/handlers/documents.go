package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/store"
)

// DocumentHandler exposes read-only REST access to session documents for
// collaborators that are not on the websocket (previews, exports).
type DocumentHandler struct {
	svc collab.Service
}

func NewDocumentHandler(svc collab.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// GetDocument returns the current snapshot for one session.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": collab.CodeValidationFailed, "message": "sessionId missing"})
		return
	}
	state, err := h.svc.State(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": collab.CodeInvalidOperation, "message": "session has no document"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": collab.CodeInternal, "message": "failed to load document"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// SaveDocument persists a snapshot of the session's current content.
func (h *DocumentHandler) SaveDocument(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": collab.CodeValidationFailed, "message": "sessionId missing"})
		return
	}
	if err := h.svc.SaveSnapshot(c.Request.Context(), sessionID); err != nil {
		ee := collab.Classify(err)
		status := http.StatusInternalServerError
		if ee.Code == collab.CodeInvalidOperation {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"code": ee.Code, "message": ee.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}
