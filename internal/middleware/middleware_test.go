package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"farm-advisor-go/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRedactBody(t *testing.T) {
	body := RedactBody([]byte(`{"message":"yellow leaves","image":"data:image/png;base64,AAAA"}`))
	assert.Contains(t, body, `"message":"yellow leaves"`)
	assert.NotContains(t, body, "base64,AAAA")
	assert.Contains(t, body, "bytes elided")

	assert.NotContains(t, RedactBody([]byte(`{"email":"a@b.c","password":"hunter22"}`)), "hunter22")
	assert.Equal(t, "plain text", RedactBody([]byte("plain text")))
	assert.Equal(t, "", RedactBody(nil))
	assert.True(t, strings.HasSuffix(RedactBody([]byte(strings.Repeat("x", 5000))), "…"))
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		b := make([]byte, 64)
		n, _ := c.Request.Body.Read(b)
		c.String(http.StatusOK, string(b[:n]))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello"))
	r.ServeHTTP(w, req)
	assert.Equal(t, "hello", w.Body.String(), "body is still readable by handlers")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(""))
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestAdminAuthMiddleware(t *testing.T) {
	run := func(user *model.User) int {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if user != nil {
				c.Set(ContextUser, user)
			}
		}, AdminAuthMiddleware())
		r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, run(&model.User{Role: model.RoleAdmin}))
	assert.Equal(t, http.StatusForbidden, run(&model.User{Role: model.RoleUser}))
	assert.Equal(t, http.StatusInternalServerError, run(nil))
}
