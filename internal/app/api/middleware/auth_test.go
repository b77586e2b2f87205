package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/karteai/billing/pkg/auth"
	cfgpkg "github.com/karteai/billing/pkg/config"
)

func testMaker(t *testing.T) *auth.Maker {
	t.Helper()
	maker, err := auth.NewMaker(&cfgpkg.Config{Auth: cfgpkg.AuthConfig{
		SessionSecret:   "test-secret",
		SessionTTLHours: 1,
		OTPTTLMinutes:   10,
	}})
	require.NoError(t, err)
	return maker
}

func TestSessionAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	maker := testMaker(t)

	r := gin.New()
	r.GET("/me", SessionAuthMiddleware(maker), func(c *gin.Context) {
		c.String(http.StatusOK, SessionEmail(c))
	})

	token, err := maker.IssueSession("User@Example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user@example.com", w.Body.String())
}

func TestSessionAuthMiddleware_Rejections(t *testing.T) {
	gin.SetMode(gin.TestMode)
	maker := testMaker(t)

	r := gin.New()
	r.GET("/me", SessionAuthMiddleware(maker), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for name, header := range map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-token",
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}
