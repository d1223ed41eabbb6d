package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailsync/internal/model"
	"mailsync/internal/sync"
)

type SyncHandler struct {
	orchestrator *sync.Orchestrator
}

func NewSyncHandler(orchestrator *sync.Orchestrator) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// TriggerSync handles POST /sync/email
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req model.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	summary := h.orchestrator.SyncBatch(c.Request.Context(), req)
	if !summary.Success {
		c.JSON(http.StatusInternalServerError, summary)
		return
	}

	c.JSON(http.StatusOK, summary)
}
