package middlewares

import (
	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/utils"
)

// WebSocketAuthMiddleware -> browser tidak bisa set header di handshake,
// jadi token lewat query param
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(401)
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			c.AbortWithStatus(401)
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}
