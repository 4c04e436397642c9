package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type capturedIdentity struct {
	userID int64
	ok     bool
}

func identityRouter(got *capturedIdentity) *gin.Engine {
	router := gin.New()
	router.Use(Identity())
	router.GET("/test", func(c *gin.Context) {
		got.userID, got.ok = GetUserID(c)
		c.Status(http.StatusOK)
	})
	return router
}

func TestIdentity_HeaderPresent(t *testing.T) {
	var got capturedIdentity
	router := identityRouter(&got)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-User-ID", "42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.True(t, got.ok)
	assert.Equal(t, int64(42), got.userID)
}

func TestIdentity_HeaderMissing(t *testing.T) {
	var got capturedIdentity
	router := identityRouter(&got)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.False(t, got.ok)
	assert.Equal(t, int64(0), got.userID)
}

func TestIdentity_HeaderNotNumeric(t *testing.T) {
	var got capturedIdentity
	router := identityRouter(&got)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.False(t, got.ok)
}
