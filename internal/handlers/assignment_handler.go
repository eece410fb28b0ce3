package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/InverskProperty/propsk-sub012/internal/middleware"
	"github.com/InverskProperty/propsk-sub012/internal/services"
)

// AssignmentHandler handles property assignment requests.
type AssignmentHandler struct {
	service services.AssignmentService
}

// NewAssignmentHandler creates a new AssignmentHandler instance.
func NewAssignmentHandler(service services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
	}
}

// AssignRequest carries the properties of a bulk assignment.
type AssignRequest struct {
	PropertyIDs []int64 `json:"propertyIds" binding:"required,min=1,dive,gt=0"`
}

// MoveRequest moves properties between blocks of one portfolio. A null
// block means portfolio-only.
type MoveRequest struct {
	FromBlockID *int64  `json:"fromBlockId"`
	ToBlockID   *int64  `json:"toBlockId"`
	PropertyIDs []int64 `json:"propertyIds" binding:"required,min=1,dive,gt=0"`
}

// BatchResponse wraps a BatchResult with its one-line summary.
type BatchResponse struct {
	*services.BatchResult
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}

func newBatchResponse(r *services.BatchResult) BatchResponse {
	return BatchResponse{BatchResult: r, Success: r.Success(), Summary: r.Summary()}
}

// Assign handles POST /api/v1/portfolios/:id/assignments.
func (h *AssignmentHandler) Assign(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.AssignPropertiesToPortfolio(c.Request.Context(), portfolioID, req.PropertyIDs, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to assign properties")
		return
	}

	c.JSON(http.StatusOK, newBatchResponse(result))
}

// AssignToBlock handles POST /api/v1/portfolios/:id/blocks/:blockId/assignments.
func (h *AssignmentHandler) AssignToBlock(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}
	blockID, ok := pathID(c, "blockId")
	if !ok {
		return
	}
	var req AssignRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.AssignPropertiesToBlock(c.Request.Context(), portfolioID, blockID, req.PropertyIDs, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to assign properties to block")
		return
	}

	c.JSON(http.StatusOK, newBatchResponse(result))
}

// Move handles POST /api/v1/portfolios/:id/assignments/move.
func (h *AssignmentHandler) Move(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req MoveRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.MovePropertiesBetweenBlocks(c.Request.Context(), portfolioID, req.FromBlockID, req.ToBlockID, req.PropertyIDs, actor)
	if err != nil {
		respondServiceError(c, err, "Failed to move properties")
		return
	}

	c.JSON(http.StatusOK, newBatchResponse(result))
}

// Remove handles DELETE /api/v1/portfolios/:id/assignments/:propertyId.
func (h *AssignmentHandler) Remove(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	portfolioID, ok := pathID(c, "id")
	if !ok {
		return
	}
	propertyID, ok := pathID(c, "propertyId")
	if !ok {
		return
	}

	if err := h.service.RemovePropertyFromPortfolio(c.Request.Context(), propertyID, portfolioID, actor); err != nil {
		respondServiceError(c, err, "Failed to remove property")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Property removed from portfolio", map[string]interface{}{
			"property_id":  propertyID,
			"portfolio_id": portfolioID,
		})
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /api/v1/assignments/stats?portfolioId=...
func (h *AssignmentHandler) Stats(c *gin.Context) {
	var portfolioID *int64
	if c.Query("portfolioId") != "" {
		id, ok := queryID(c, "portfolioId")
		if !ok {
			return
		}
		portfolioID = &id
	}

	stats, err := h.service.Stats(c.Request.Context(), portfolioID)
	if err != nil {
		respondServiceError(c, err, "Failed to compute assignment statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}
