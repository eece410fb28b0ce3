package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/InverskProperty/propsk-sub012/internal/services"
)

// BlockHandler handles block lifecycle requests.
type BlockHandler struct {
	service services.BlockService
}

// NewBlockHandler creates a new BlockHandler instance.
func NewBlockHandler(service services.BlockService) *BlockHandler {
	return &BlockHandler{
		service: service,
	}
}

// CreateBlockRequest is the body of POST /portfolios/:id/blocks.
type CreateBlockRequest struct {
	Capacity    *int   `json:"capacity" binding:"omitempty,gte=0"`
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// UpdateBlockRequest is the body of PUT /blocks/:id.
type UpdateBlockRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	Description *string `json:"description"`
	Kind        *string `json:"kind"`
}

// ReorderBlocksRequest is the body of PUT /portfolios/:id/blocks/order.
type ReorderBlocksRequest struct {
	Orders []BlockOrder `json:"orders" binding:"required,min=1,dive"`
}

// BlockOrder assigns a display order to one block.
type BlockOrder struct {
	BlockID      int64 `json:"blockId" binding:"required,gt=0"`
	DisplayOrder int   `json:"displayOrder" binding:"gte=0"`
}

// CapacityRequest is the body of PUT /blocks/:id/capacity. A null capacity
// removes the limit.
type CapacityRequest struct {
	Capacity *int `json:"capacity" binding:"omitempty,gte=0"`
}

// CapacityResponse reports a block's remaining room.
type CapacityResponse struct {
	Capacity  *int  `json:"capacity"`
	Available *int  `json:"available"`
	BlockID   int64 `json:"blockId"`
	Full      bool  `json:"full"`
}

// Create handles POST /api/v1/portfolios/:id/blocks.
func (h *BlockHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CreateBlockRequest
	if !bindJSON(c, &req) {
		return
	}

	block, err := h.service.CreateBlock(c.Request.Context(), portfolioID, services.CreateBlockInput{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Capacity:    req.Capacity,
	}, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to create block")
		return
	}

	c.JSON(http.StatusCreated, block)
}

// Update handles PUT /api/v1/blocks/:id.
func (h *BlockHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	blockID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateBlockRequest
	if !bindJSON(c, &req) {
		return
	}

	block, err := h.service.UpdateBlock(c.Request.Context(), blockID, services.UpdateBlockInput{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
	}, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to update block")
		return
	}

	c.JSON(http.StatusOK, block)
}

// Delete handles DELETE /api/v1/blocks/:id?policy=...&targetBlockId=...
func (h *BlockHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	blockID, ok := pathID(c, "id")
	if !ok {
		return
	}
	policy, err := services.ParseReassignmentPolicy(c.Query("policy"))
	if err != nil {
		respondServiceError(c, err, "Failed to delete block")
		return
	}
	var target *int64
	if c.Query("targetBlockId") != "" {
		id, ok := queryID(c, "targetBlockId")
		if !ok {
			return
		}
		target = &id
	}

	result, err := h.service.DeleteBlock(c.Request.Context(), blockID, policy, target, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to delete block")
		return
	}

	c.JSON(http.StatusOK, result)
}

// List handles GET /api/v1/portfolios/:id/blocks.
func (h *BlockHandler) List(c *gin.Context) {
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}

	blocks, err := h.service.ListBlocks(c.Request.Context(), portfolioID)
	if err != nil {
		respondServiceError(c, err, "Failed to list blocks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// MoveUp handles POST /api/v1/blocks/:id/move-up.
func (h *BlockHandler) MoveUp(c *gin.Context) {
	h.move(c, h.service.MoveBlockUp)
}

// MoveDown handles POST /api/v1/blocks/:id/move-down.
func (h *BlockHandler) MoveDown(c *gin.Context) {
	h.move(c, h.service.MoveBlockDown)
}

func (h *BlockHandler) move(c *gin.Context, fn func(ctx context.Context, blockID, actor int64) error) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	blockID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), blockID, actor); err != nil {
		respondServiceError(c, err, "Failed to move block")
		return
	}
	c.Status(http.StatusNoContent)
}

// Reorder handles PUT /api/v1/portfolios/:id/blocks/order.
func (h *BlockHandler) Reorder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReorderBlocksRequest
	if !bindJSON(c, &req) {
		return
	}

	orders := make(map[int64]int, len(req.Orders))
	for _, o := range req.Orders {
		orders[o.BlockID] = o.DisplayOrder
	}
	if err := h.service.ReorderBlocks(c.Request.Context(), portfolioID, orders, actor); err != nil {
		respondServiceError(c, err, "Failed to reorder blocks")
		return
	}

	c.Status(http.StatusNoContent)
}

// SetCapacity handles PUT /api/v1/blocks/:id/capacity.
func (h *BlockHandler) SetCapacity(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	blockID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CapacityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.SetCapacity(c.Request.Context(), blockID, req.Capacity, actor); err != nil {
		respondServiceError(c, err, "Failed to set capacity")
		return
	}
	h.writeCapacity(c, blockID)
}

// GetCapacity handles GET /api/v1/blocks/:id/capacity.
func (h *BlockHandler) GetCapacity(c *gin.Context) {
	blockID, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.writeCapacity(c, blockID)
}

func (h *BlockHandler) writeCapacity(c *gin.Context, blockID int64) {
	ctx := c.Request.Context()
	block, err := h.service.GetBlock(ctx, blockID)
	if err != nil {
		respondServiceError(c, err, "Failed to read capacity")
		return
	}
	available, err := h.service.GetAvailableCapacity(ctx, blockID)
	if err != nil {
		respondServiceError(c, err, "Failed to read capacity")
		return
	}

	c.JSON(http.StatusOK, CapacityResponse{
		BlockID:   blockID,
		Capacity:  block.Capacity,
		Available: available,
		Full:      available != nil && *available == 0,
	})
}
