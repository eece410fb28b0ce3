package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the portfolio, block, assignment and sync endpoints
// under v1.
func RegisterRoutes(v1 *gin.RouterGroup, blocks *BlockHandler, assignments *AssignmentHandler, sync *SyncHandler) {
	portfolios := v1.Group("/portfolios")
	{
		portfolios.POST("/adopt", sync.AdoptTags)
		portfolios.DELETE("/:id", sync.DeletePortfolio)
		portfolios.GET("/:id/blocks", blocks.List)
		portfolios.POST("/:id/blocks", blocks.Create)
		portfolios.PUT("/:id/blocks/order", blocks.Reorder)
		portfolios.POST("/:id/blocks/:blockId/assignments", assignments.AssignToBlock)
		portfolios.POST("/:id/assignments", assignments.Assign)
		portfolios.POST("/:id/assignments/move", assignments.Move)
		portfolios.DELETE("/:id/assignments/:propertyId", assignments.Remove)
	}

	blockRoutes := v1.Group("/blocks")
	{
		blockRoutes.PUT("/:id", blocks.Update)
		blockRoutes.DELETE("/:id", blocks.Delete)
		blockRoutes.POST("/:id/move-up", blocks.MoveUp)
		blockRoutes.POST("/:id/move-down", blocks.MoveDown)
		blockRoutes.GET("/:id/capacity", blocks.GetCapacity)
		blockRoutes.PUT("/:id/capacity", blocks.SetCapacity)
	}

	v1.GET("/assignments/stats", assignments.Stats)

	syncRoutes := v1.Group("/sync")
	{
		syncRoutes.POST("/all", sync.SyncAll)
		syncRoutes.POST("/assignments/:id", sync.SyncAssignment)
		syncRoutes.POST("/portfolios/:id", sync.SyncPortfolio)
		syncRoutes.POST("/blocks/:id", sync.SyncBlock)
	}
}
