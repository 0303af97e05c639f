// Package response 定义统一的 HTTP 响应结构 {code, message, data}。
package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/sentinel-rag/pkg/errors"
)

// RequestIDKey gin 上下文中保存请求 ID 的键。
const RequestIDKey = "request_id"

// Response 统一响应结构，code 为 0 表示成功。
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Success 创建成功响应。
func Success(data any) *Response {
	return &Response{Code: 0, Message: "success", Data: data}
}

// Err 根据错误码创建错误响应，lang 为空时使用英文消息。
func Err(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, Message: e.Message(lang)}
}

// HTTPStatus 返回 code 对应的 HTTP 状态码。
// 未注册的 code 按类别推断。
func (r *Response) HTTPStatus() int {
	if r.Code == 0 {
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}

	_, category, _ := errors.ParseCode(r.Code)
	switch category {
	case errors.CategoryRequest:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryPermission:
		return http.StatusForbidden
	case errors.CategoryResource:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// OK 写入成功响应。
func OK(c *gin.Context, data any) {
	resp := Success(data)
	resp.RequestID = c.GetString(RequestIDKey)
	c.JSON(http.StatusOK, resp)
}

// Fail 写入错误响应。非 Errno 错误按 ErrInternal 处理，消息不暴露内部细节。
func Fail(c *gin.Context, err error) {
	FailWithData(c, err, nil)
}

// FailWithData 写入携带附加数据的错误响应。
func FailWithData(c *gin.Context, err error, data any) {
	e := errors.FromError(err)
	resp := Err(e, Lang(c))
	resp.Data = data
	resp.RequestID = c.GetString(RequestIDKey)
	c.JSON(e.HTTPStatus(), resp)
}

// Abort 写入错误响应并终止后续 handler。
func Abort(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}

// Lang 从 Accept-Language 中取首选语言。
func Lang(c *gin.Context) string {
	al := c.GetHeader("Accept-Language")
	if al == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(al, ",")[0])
	if i := strings.IndexByte(first, ';'); i >= 0 {
		first = first[:i]
	}
	return first
}
