package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photory/internal/core/logger"
)

const KeyRequestID = "X-Request-ID"

// 客户端传入的 ID 超过此长度就丢弃重新生成，避免把任意长串写进日志
const maxRequestIDLen = 64

// RequestID 透传或生成请求 ID，同时写入 gin 上下文和 request ctx（服务层日志从 ctx 取）
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get(KeyRequestID)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(KeyRequestID, rid)
		c.Set(KeyRequestID, rid)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}
