package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/pkg/errors"
	authopts "github.com/kart-io/sentinel-rag/pkg/options/auth"
	"github.com/kart-io/sentinel-rag/pkg/response"
)

// TenantKey gin 上下文中保存令牌租户的键。
const TenantKey = "auth_tenant_id"

// TenantAuth 校验 HS256 Bearer 令牌，并把令牌中的租户写入上下文。
// opts 为 nil 或未启用时直接放行。
func TenantAuth(opts *authopts.Options) gin.HandlerFunc {
	if opts == nil || !opts.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	key := []byte(opts.Key)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, errors.ErrUnauthorized.WithMessage("missing bearer token"))
			return
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil })
		if err != nil {
			logger.Warnw("rejected tenant token", "path", c.Request.URL.Path, "error", err.Error())
			response.Abort(c, errors.ErrInvalidToken.WithCause(err))
			return
		}
		if opts.Issuer != "" && !claims.VerifyIssuer(opts.Issuer, true) {
			response.Abort(c, errors.ErrInvalidToken.WithMessage("unexpected token issuer"))
			return
		}

		tenant, _ := claims[opts.TenantClaim].(string)
		if strings.TrimSpace(tenant) == "" {
			response.Abort(c, errors.ErrInvalidToken.WithMessage(fmt.Sprintf("token has no %s claim", opts.TenantClaim)))
			return
		}

		c.Set(TenantKey, tenant)
		c.Next()
	}
}

// TenantFromContext 返回令牌中的租户，未启用认证时为空。
func TenantFromContext(c *gin.Context) string {
	return c.GetString(TenantKey)
}

// AuthorizeTenant 校验请求租户与令牌租户一致，未启用认证时总是通过。
func AuthorizeTenant(c *gin.Context, requestTenant string) error {
	tokenTenant := TenantFromContext(c)
	if tokenTenant == "" {
		return nil
	}
	if tokenTenant != strings.TrimSpace(requestTenant) {
		logger.Warnw("tenant mismatch between token and request",
			"token_tenant", tokenTenant, "request_tenant", requestTenant,
			"request_id", c.GetString(response.RequestIDKey))
		return errors.ErrTenantMismatch
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
