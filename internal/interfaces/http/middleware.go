package http

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

// ActorHeader carries the caller identity, authenticated upstream
const ActorHeader = "X-Actor-ID"

const actorKey = "actor"

func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if actor := c.GetString(actorKey); actor != "" {
			fields = append(fields, "actor", actor)
		}
		if status >= 500 {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}

// actorMiddleware rejects requests without an actor identity
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			writeError(c, entity.NewValidationError("missing %s header", ActorHeader), nil)
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorOf(c *gin.Context) string {
	return c.GetString(actorKey)
}
