/**
 * 日志中间件
 * @author: sun977
 * @date: 2026.02.10
 * @description: 控制接口访问日志，为每个请求生成 X-Request-ID 并写入 access 日志
 */
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"neohunter/internal/pkg/logger"
	"neohunter/internal/pkg/utils"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// LoggingConfig 日志配置
type LoggingConfig struct {
	// 跳过日志的路径
	SkipPaths []string `json:"skip_paths"`

	// 慢请求阈值
	SlowRequestThreshold time.Duration `json:"slow_request_threshold"`
}

// LoggingMiddleware 日志中间件
type LoggingMiddleware struct {
	config *LoggingConfig
	skip   map[string]struct{}
}

// NewLoggingMiddleware 创建日志中间件
func NewLoggingMiddleware(config *LoggingConfig) *LoggingMiddleware {
	if config == nil {
		config = &LoggingConfig{
			SkipPaths:            []string{"/health"},
			SlowRequestThreshold: 2 * time.Second,
		}
	}
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}
	return &LoggingMiddleware{config: config, skip: skip}
}

// Handler 日志处理器
func (m *LoggingMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateUUID()
		}
		c.Header(RequestIDHeader, requestID)

		if _, ok := m.skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.LogAccessRequest(c, start, requestID)
		if d := time.Since(start); m.config.SlowRequestThreshold > 0 && d > m.config.SlowRequestThreshold {
			logger.Warnf("Slow request %s %s took %s", c.Request.Method, c.Request.URL.Path, d)
		}
	}
}
