package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apierrors "github.com/InverskProperty/propsk-sub012/internal/errors"
	"github.com/InverskProperty/propsk-sub012/internal/services"
)

// SyncHandler exposes on-demand reconciliation and the portfolio-wide
// maintenance operations.
type SyncHandler struct {
	sync       services.SyncService
	portfolios services.PortfolioService
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(sync services.SyncService, portfolios services.PortfolioService) *SyncHandler {
	return &SyncHandler{
		sync:       sync,
		portfolios: portfolios,
	}
}

// SyncResponse wraps a SyncResult with its one-line message.
type SyncResponse struct {
	*services.SyncResult
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SyncAssignment handles POST /api/v1/sync/assignments/:id.
func (h *SyncHandler) SyncAssignment(c *gin.Context) {
	h.syncOne(c, h.sync.SyncAssignment)
}

// SyncPortfolio handles POST /api/v1/sync/portfolios/:id.
func (h *SyncHandler) SyncPortfolio(c *gin.Context) {
	h.syncOne(c, h.sync.SyncPortfolio)
}

// SyncBlock handles POST /api/v1/sync/blocks/:id.
func (h *SyncHandler) SyncBlock(c *gin.Context) {
	h.syncOne(c, h.sync.SyncBlock)
}

func (h *SyncHandler) syncOne(c *gin.Context, fn func(ctx context.Context, id, actor int64) (*services.SyncResult, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := fn(c.Request.Context(), id, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to sync")
		return
	}
	writeSync(c, result)
}

// SyncAll handles POST /api/v1/sync/all.
func (h *SyncHandler) SyncAll(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := h.sync.SyncAllNeedingSync(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err, "Failed to sync")
		return
	}
	writeSync(c, result)
}

func writeSync(c *gin.Context, result *services.SyncResult) {
	c.JSON(http.StatusOK, SyncResponse{
		SyncResult: result,
		Success:    result.Success(),
		Message:    result.Message(),
	})
}

// AdoptTags handles POST /api/v1/portfolios/adopt.
func (h *SyncHandler) AdoptTags(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := h.portfolios.AdoptExternalTags(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err, "Failed to adopt external tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":  result,
		"message": result.Message(),
	})
}

// DeletePortfolio handles DELETE /api/v1/portfolios/:id?hard=true.
func (h *SyncHandler) DeletePortfolio(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	hard := false
	if raw := c.Query("hard"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.BadRequest(c, "Invalid hard flag", map[string]interface{}{"hard": raw})
			return
		}
		hard = parsed
	}

	result, err := h.portfolios.DeletePortfolio(c.Request.Context(), id, hard, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to delete portfolio")
		return
	}

	c.JSON(http.StatusOK, result)
}
