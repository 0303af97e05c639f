package errors

import "google.golang.org/grpc/codes"

// RAG 服务错误码，服务代码 20。
var (
	// 请求参数错误 (类别 01)
	ErrRAGInvalidRequest  = Register(New(MakeCode(ServiceRAG, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid query request", "查询请求无效"))
	ErrRAGUnknownProvider = Register(New(MakeCode(ServiceRAG, CategoryRequest, 2), 400, codes.InvalidArgument, "Unknown LLM provider", "未知的 LLM 供应商"))

	// 租户隔离 (类别 03)
	ErrTenantIsolationViolation = Register(New(MakeCode(ServiceRAG, CategoryPermission, 1), 403, codes.PermissionDenied, "Tenant isolation violation", "租户隔离校验失败"))
	ErrTenantMismatch           = Register(New(MakeCode(ServiceRAG, CategoryPermission, 2), 403, codes.PermissionDenied, "Token tenant does not match request tenant", "令牌租户与请求租户不一致"))

	// 检索与生成 (类别 07 / 10)
	ErrRAGRetrievalFailed  = Register(New(MakeCode(ServiceRAG, CategoryInternal, 1), 500, codes.Internal, "Retrieval failed", "检索失败"))
	ErrRAGGenerationFailed = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 1), 502, codes.Unavailable, "Generation backend failed", "生成服务调用失败"))

	// 请求超时或取消 (类别 11)
	ErrRAGQueryCancelled = Register(New(MakeCode(ServiceRAG, CategoryTimeout, 1), 504, codes.Canceled, "Query cancelled before it ran", "查询在执行前被取消"))

	// 缓存 (类别 09)
	ErrRAGCacheUnavailable = Register(New(MakeCode(ServiceRAG, CategoryCache, 1), 500, codes.Unavailable, "Response cache unavailable", "响应缓存不可用"))
)
