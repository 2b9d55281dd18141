package middleware

import (
	"strings"

	"TrackHub/pkg/response"
	"TrackHub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by JWTAuthMiddleware for downstream handlers.
const (
	CtxUserIDKey   = "userID"
	CtxUsernameKey = "username"
)

// UserID returns the authenticated user id bound by JWTAuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.ReplyUnauthorized(c, "Authorization header is required")
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.ReplyUnauthorized(c, "Authorization header format must be Bearer {token}")
			c.Abort()
			return
		}
		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.ReplyUnauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUsernameKey, claims.UserName)
		c.Next()
	}
}
