package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/metrics"
)

// Recovery converts a handler panic into the standard 500 envelope. The
// stack goes to the log only.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			metrics.IncPanics()

			l := GetLogger(c)
			if l == nil {
				l = log
			}
			l.Error("Panic recovered", fmt.Errorf("panic: %v", recovered), map[string]interface{}{
				"actor_id": GetActorID(c),
				"method":   c.Request.Method,
				"route":    c.FullPath(),
				"stack":    string(debug.Stack()),
			})

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":       "INTERNAL_SERVER_ERROR",
					"message":    "An unexpected error occurred",
					"request_id": GetRequestID(c),
				},
			})
		}()

		c.Next()
	}
}
