package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// OK represents a successful operation.
var OK = Register(New(0, http.StatusOK, codes.OK, "Success", "成功"))

var (
	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = Register(New(MakeCode(ServiceCommon, CategoryRequest, 0),
		http.StatusBadRequest, codes.InvalidArgument, "Bad request", "请求格式错误"))

	// ErrInvalidParam indicates an invalid parameter.
	ErrInvalidParam = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1),
		http.StatusBadRequest, codes.InvalidArgument, "Invalid parameter", "参数无效"))

	// ErrUnauthorized indicates missing authentication.
	ErrUnauthorized = Register(New(MakeCode(ServiceCommon, CategoryAuth, 0),
		http.StatusUnauthorized, codes.Unauthenticated, "Unauthorized", "未认证"))

	// ErrInvalidToken indicates a token that failed verification.
	ErrInvalidToken = Register(New(MakeCode(ServiceCommon, CategoryAuth, 1),
		http.StatusUnauthorized, codes.Unauthenticated, "Invalid token", "令牌无效"))

	// ErrForbidden indicates the caller may not access the resource.
	ErrForbidden = Register(New(MakeCode(ServiceCommon, CategoryPermission, 0),
		http.StatusForbidden, codes.PermissionDenied, "Forbidden", "禁止访问"))

	// ErrRouteNotFound indicates an unknown route.
	ErrRouteNotFound = Register(New(MakeCode(ServiceCommon, CategoryResource, 4),
		http.StatusNotFound, codes.NotFound, "Route not found", "路由不存在"))

	// ErrInternal indicates an internal server error.
	ErrInternal = Register(New(MakeCode(ServiceCommon, CategoryInternal, 0),
		http.StatusInternalServerError, codes.Internal, "Internal server error", "服务器内部错误"))

	// ErrCache indicates a cache error.
	ErrCache = Register(New(MakeCode(ServiceCommon, CategoryCache, 0),
		http.StatusInternalServerError, codes.Internal, "Cache error", "缓存错误"))

	// ErrConfigInvalid indicates invalid configuration.
	ErrConfigInvalid = Register(New(MakeCode(ServiceCommon, CategoryConfig, 2),
		http.StatusInternalServerError, codes.FailedPrecondition, "Invalid configuration", "配置无效"))
)
