package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/id"
	authopts "github.com/kart-io/sentinel-rag/pkg/options/auth"
	"github.com/kart-io/sentinel-rag/pkg/response"
	"github.com/kart-io/sentinel-rag/pkg/utils/json"
)

const testKey = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func authEngine(opts *authopts.Options) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(), RequestID())
	r.GET("/t", TenantAuth(opts), func(c *gin.Context) {
		if err := AuthorizeTenant(c, c.Query("tenant")); err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, TenantFromContext(c))
	})
	return r
}

func do(r http.Handler, token, tenant string) (*httptest.ResponseRecorder, response.Response) {
	req := httptest.NewRequest(http.MethodGet, "/t?tenant="+tenant, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body response.Response
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func enabledAuth() *authopts.Options {
	o := authopts.NewOptions()
	o.Enabled = true
	o.Key = testKey
	return o
}

func TestTenantAuth_Disabled(t *testing.T) {
	rec, body := do(authEngine(authopts.NewOptions()), "", "tn_abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, body.Code)
}

func TestTenantAuth(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	valid := signToken(t, jwt.MapClaims{"tenant_id": "tn_abc", "iss": "sentinel-rag", "exp": future}, jwt.SigningMethodHS256, []byte(testKey))

	tests := []struct {
		name     string
		token    string
		tenant   string
		wantHTTP int
		wantCode int
	}{
		{"valid", valid, "tn_abc", http.StatusOK, 0},
		{"missing token", "", "tn_abc", http.StatusUnauthorized, errors.ErrUnauthorized.Code},
		{"tenant mismatch", valid, "tn_xyz", http.StatusForbidden, errors.ErrTenantMismatch.Code},
		{
			"wrong key",
			signToken(t, jwt.MapClaims{"tenant_id": "tn_abc", "iss": "sentinel-rag"}, jwt.SigningMethodHS256, []byte(strings.Repeat("x", 32))),
			"tn_abc", http.StatusUnauthorized, errors.ErrInvalidToken.Code,
		},
		{
			"expired",
			signToken(t, jwt.MapClaims{"tenant_id": "tn_abc", "iss": "sentinel-rag", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testKey)),
			"tn_abc", http.StatusUnauthorized, errors.ErrInvalidToken.Code,
		},
		{
			"other algorithm",
			signToken(t, jwt.MapClaims{"tenant_id": "tn_abc", "iss": "sentinel-rag"}, jwt.SigningMethodHS512, []byte(testKey)),
			"tn_abc", http.StatusUnauthorized, errors.ErrInvalidToken.Code,
		},
		{
			"wrong issuer",
			signToken(t, jwt.MapClaims{"tenant_id": "tn_abc", "iss": "someone"}, jwt.SigningMethodHS256, []byte(testKey)),
			"tn_abc", http.StatusUnauthorized, errors.ErrInvalidToken.Code,
		},
		{
			"no tenant claim",
			signToken(t, jwt.MapClaims{"iss": "sentinel-rag"}, jwt.SigningMethodHS256, []byte(testKey)),
			"tn_abc", http.StatusUnauthorized, errors.ErrInvalidToken.Code,
		},
	}

	r := authEngine(enabledAuth())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(r, tt.token, tt.tenant)
			assert.Equal(t, tt.wantHTTP, rec.Code)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantCode == 0 {
				assert.Equal(t, tt.tenant, body.Data)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		assert.Equal(t, c.GetString(response.RequestIDKey), GetRequestID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, id.IsValid(rec.Header().Get(HeaderXRequestID)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "upstream-id")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrInternal.Code, body.Code)
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/", func(c *gin.Context) {
		var v map[string]any
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"0123456789"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
