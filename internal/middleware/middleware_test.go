package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/config"
	"github.com/iliyamo/bus-ticketing-crm/internal/utils"
)

const secret = "test-secret"

func protected() *echo.Echo {
	e := echo.New()
	g := e.Group("/admin", JWTAuth(secret), RequireRole("admin", "manager"))
	g.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(CtxUserID).(string))
	})
	return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRole(t *testing.T) {
	e := protected()

	admin, err := utils.NewAccessToken(secret, "ops@crm", "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	passenger, _ := utils.NewAccessToken(secret, "42", "passenger", time.Hour)
	foreign, _ := utils.NewAccessToken("other-secret", "ops@crm", "admin", time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "role": "admin"}).SignedString([]byte(secret))
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "role": "admin", "exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(secret))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"admin", admin.Token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong role", passenger.Token, http.StatusForbidden},
		{"wrong secret", foreign.Token, http.StatusUnauthorized},
		{"no exp", noExp, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"garbage", "abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e, tt.token)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "ops@crm" {
				t.Fatalf("user id = %q", rec.Body.String())
			}
		})
	}
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zerolog.Nop()),
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: []string{"GET"}}, nil, zerolog.Nop()))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("status=%d x-cache=%q", rec.Code, rec.Header().Get("X-Cache"))
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(zerolog.Nop()))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("request id not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderXRequestID); got != "abc" {
		t.Fatalf("request id = %q", got)
	}
}
