package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	valid := func(role string) jwt.MapClaims {
		return jwt.MapClaims{"sub": "admin-user", "role": role, "exp": time.Now().Add(time.Hour).Unix()}
	}

	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{"Admin role", testSecret, "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, valid("admin")), http.StatusOK},
		{"Service role", testSecret, "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, valid("service_role")), http.StatusOK},
		{"Authenticated user", testSecret, "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, valid("authenticated")), http.StatusForbidden},
		{"Wrong secret", testSecret, "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", valid("admin")), http.StatusUnauthorized},
		{"Expired", testSecret, "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"Missing header", testSecret, "", http.StatusUnauthorized},
		{"Malformed header", testSecret, "Token abc", http.StatusUnauthorized},
		{"Admin API disabled", "", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, valid("admin")), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin", AdminMiddleware(tt.secret), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"subject": c.GetString("admin_subject")})
			})

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}
