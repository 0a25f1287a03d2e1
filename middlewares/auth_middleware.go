package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/utils"
)

// AuthMiddleware menerima token staff maupun guest; claims di-set ke context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := utils.ParseToken(tokenString)
		if err != nil || claims == nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *utils.CustomClaims) {
	c.Set("role", claims.Role)
	if claims.UserID != 0 {
		c.Set("user_id", claims.UserID)
	}
	if claims.SessionID != 0 {
		c.Set("session_id", claims.SessionID)
	}
	if claims.ParticipantID != 0 {
		c.Set("participant_id", claims.ParticipantID)
	}
}
