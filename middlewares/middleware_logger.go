package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/utils"
)

// LoggerMiddleware -> log method, path, status dan latency per request
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if utils.InfoLogger == nil {
			return
		}
		utils.InfoLogger.Printf("%s %s -> %d (%v)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
