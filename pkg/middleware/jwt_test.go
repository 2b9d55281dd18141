package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"TrackHub/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.GET("/whoami", JWTAuthMiddleware(), func(c *gin.Context) {
		uid, ok := UserID(c)
		if !ok {
			c.String(http.StatusInternalServerError, "no identity in context")
			return
		}
		c.String(http.StatusOK, strconv.FormatInt(uid, 10))
	})
	return g
}

func TestJWTAuthBindsIdentity(t *testing.T) {
	token, err := utils.GenerateToken("alice", 7)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthEngine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Body.String())
}

func TestJWTAuthRejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			newAuthEngine().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
