package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const contextKeyUserID = "user_id"

// Identity 从网关注入的请求头读取调用方身份。
// 认证本身由外围系统的接入层完成，这里只透传租户字段。
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-User-ID"); raw != "" {
			if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
				c.Set(contextKeyUserID, userID)
			}
		}
		c.Next()
	}
}

// GetUserID 获取当前请求的用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get(contextKeyUserID)
	if !exists {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok
}
