package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/sentinel-rag/pkg/id"
	"github.com/kart-io/sentinel-rag/pkg/response"
)

// HeaderXRequestID 请求 ID 头。
const HeaderXRequestID = "X-Request-ID"

// maxRequestIDLength 客户端传入的请求 ID 超过该长度时重新生成。
const maxRequestIDLength = 128

type requestIDKey struct{}

// RequestID 为每个请求分配 ID：优先沿用 X-Request-ID，否则生成 ULID。
// ID 写入响应头、gin 上下文与 request context。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = id.NewRequestID()
		}

		c.Header(HeaderXRequestID, rid)
		c.Set(response.RequestIDKey, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, rid))
		c.Next()
	}
}

// GetRequestID 从 context 中读取请求 ID，不存在时返回空字符串。
func GetRequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}
