/**
 * 控制接口路由注册
 * @author: sun977
 * @date: 2026.02.10
 * @description: gin 路由，统一注册健康检查与 /api/v1 控制路由
 */
package router

import (
	"github.com/gin-gonic/gin"

	"neohunter/internal/app/hunter/middleware"
	"neohunter/internal/handler/control"
	"neohunter/internal/pkg/logger"
)

// RouterConfig 路由配置
type RouterConfig struct {
	// gin 运行模式 (debug/release/test)
	Mode string `json:"mode"`

	// API版本
	APIVersion string `json:"api_version"`

	// 路由前缀
	Prefix string `json:"prefix"`

	// 版本信息 (/health 返回)
	Version string `json:"version"`

	// 日志中间件配置
	Logging *middleware.LoggingConfig `json:"logging"`
}

// Router 控制接口路由器
type Router struct {
	engine  *gin.Engine
	config  *RouterConfig
	handler control.HunterControlHandler
}

// NewRouter 创建路由器
func NewRouter(config *RouterConfig, handler control.HunterControlHandler) *Router {
	if config == nil {
		config = &RouterConfig{}
	}
	if config.APIVersion == "" {
		config.APIVersion = "v1"
	}
	if config.Prefix == "" {
		config.Prefix = "/api"
	}

	switch config.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(config.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:  gin.New(),
		config:  config,
		handler: handler,
	}
	r.registerRoutes()
	return r
}

func (r *Router) registerRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.NewLoggingMiddleware(r.config.Logging).Handler())

	r.setupHealthRoutes()

	api := r.engine.Group(r.config.Prefix + "/" + r.config.APIVersion)
	setupControlRoutes(api, r.handler)

	logger.Debugf("Control API routes registered under %s/%s", r.config.Prefix, r.config.APIVersion)
}

// setupControlRoutes 状态、知识库、动作与编排器控制
func setupControlRoutes(group *gin.RouterGroup, h control.HunterControlHandler) {
	group.GET("/status", h.GetStatus)
	group.GET("/kb", h.GetKnowledgeBase)

	actions := group.Group("/actions")
	actions.GET("", h.ListActions)
	actions.POST("/trigger", h.TriggerAction)

	orch := group.Group("/orchestrator")
	orch.POST("/start", h.StartOrchestrator)
	orch.POST("/stop", h.StopOrchestrator)
}

// GetEngine 获取Gin引擎
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
