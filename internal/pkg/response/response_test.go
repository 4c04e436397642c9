package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func TestSuccess(t *testing.T) {
	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		Success(c, gin.H{"job_id": 7})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(7), data["job_id"])
}

func TestErrorUsesDefaultMessage(t *testing.T) {
	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		Error(c, CodeResourceNotFound, "")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	assert.Equal(t, CodeResourceNotFound, resp.Code)
	assert.Equal(t, codeMessages[CodeResourceNotFound], resp.Message)
	assert.Nil(t, resp.Data)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		handler  gin.HandlerFunc
		wantCode int
	}{
		{"param error", func(c *gin.Context) { ParamError(c, "bad batch size") }, CodeParamError},
		{"not found", func(c *gin.Context) { NotFoundError(c, "") }, CodeResourceNotFound},
		{"conflict", func(c *gin.Context) { ConflictError(c, "") }, CodeConflict},
		{"server error", func(c *gin.Context) { ServerError(c, "") }, CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/test", tt.handler)

			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			resp := parseResponse(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}
