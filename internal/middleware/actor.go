package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// ActorIDKey is the context key for the acting user ID.
	ActorIDKey = "actor_id"
	// ActorIDHeader carries the acting user ID, set by the upstream auth proxy.
	ActorIDHeader = "X-Actor-ID"
)

// Actor resolves the acting user for audit columns. Requests without the
// header act as fallback; a malformed header is rejected.
func Actor(fallback int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := fallback
		if raw := c.GetHeader(ActorIDHeader); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": gin.H{
						"code":       "BAD_REQUEST",
						"message":    ActorIDHeader + " must be a positive integer",
						"request_id": GetRequestID(c),
					},
				})
				return
			}
			actor = id
		}
		c.Set(ActorIDKey, actor)
		c.Next()
	}
}

// GetActorID returns the acting user ID, or 0 when Actor did not run.
func GetActorID(c *gin.Context) int64 {
	if v, exists := c.Get(ActorIDKey); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
