package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protected(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := IssueToken("secret", "alice", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protected(AuthMiddleware("secret")).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	token, err := IssueToken("secret", "bob", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	protected(AuthMiddleware("secret")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil))
	assert.Equal(t, "bob", w.Body.String())
}

func TestAuthMiddlewareRejects(t *testing.T) {
	wrongKey, _ := IssueToken("other", "alice", time.Hour)
	expired, _ := IssueToken("secret", "alice", -time.Minute)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("secret"))

	for name, header := range map[string]string{
		"missing":    "",
		"wrong key":  "Bearer " + wrongKey,
		"expired":    "Bearer " + expired,
		"no subject": "Bearer " + noSubject,
		"garbage":    "Bearer abc",
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			protected(AuthMiddleware("secret")).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	r := protected(AdminKeyMiddleware("k3y"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Admin-Key", "k3y")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req.Header.Set("X-Admin-Key", "nope")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	protected(AdminKeyMiddleware("")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminKeyMiddlewareAcceptsHashedKey(t *testing.T) {
	hash, err := HashAdminKey("k3y")
	require.NoError(t, err)
	require.NotEqual(t, "k3y", hash)
	r := protected(AdminKeyMiddleware(hash))

	for key, want := range map[string]int{"k3y": http.StatusOK, "nope": http.StatusUnauthorized, "": http.StatusUnauthorized} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("X-Admin-Key", key)
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, key)
	}
}
