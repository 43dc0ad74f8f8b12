/**
 * 路由:健康检查路由
 * @author: sun977
 * @date: 2026.02.10
 * @description: 不经过 /api 前缀的存活检查
 */
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"neohunter/internal/pkg/logger"
)

func (r *Router) setupHealthRoutes() {
	r.engine.GET("/health", r.handleHealth)
}

// handleHealth 健康检查处理器
func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": logger.NowFormatted(),
		"service":   "neohunter",
		"version":   r.config.Version,
	})
}
