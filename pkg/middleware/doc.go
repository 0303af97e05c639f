// Package middleware 提供 gin 中间件：请求 ID、访问日志、panic 恢复、请求体限制与租户令牌校验。
//
//	engine.Use(
//	    middleware.Recovery(),
//	    middleware.RequestID(),
//	    middleware.Logger("/healthz"),
//	    middleware.BodyLimit(1<<20),
//	)
//	v1.Use(middleware.TenantAuth(authOpts))
package middleware
