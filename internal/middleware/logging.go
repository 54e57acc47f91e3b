// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"farm-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 携带每个请求的追踪 ID。
const RequestIDHeader = "X-Request-ID"

// maxLoggedBody 限制日志中记录的请求/响应体长度。
const maxLoggedBody = 2048

// 不写入日志的请求字段。
var redactedFields = []string{"image", "password"}

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 图片载荷与密码不会出现在日志中。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestId", requestID)
		c.Header(RequestIDHeader, requestID)

		// 读取并重新缓存请求体，以便后续处理函数可以正常读取
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"requestId", requestID,
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", RedactBody(requestBody),
			"responseBody", truncate(blw.body.String()),
		)
	}
}

// RedactBody 返回适合写入日志的请求体：JSON 对象中的敏感字段被替换为占位文本。
func RedactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return truncate(string(body))
	}
	changed := false
	for _, name := range redactedFields {
		if raw, ok := fields[name]; ok {
			placeholder, _ := json.Marshal(fmt.Sprintf("<%d bytes elided>", len(raw)))
			fields[name] = placeholder
			changed = true
		}
	}
	if !changed {
		return truncate(string(body))
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return "<unloggable body>"
	}
	return truncate(string(out))
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "…"
}
