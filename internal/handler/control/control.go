/**
 * 编排器控制处理器
 * @author: sun977
 * @date: 2026.02.10
 * @description: 控制接口的 HTTP 处理器：状态查询、知识库视图、动作列表、编排器启停与手动触发
 */
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"neohunter/internal/core/kb"
	"neohunter/internal/core/model"
	"neohunter/internal/core/orchestrator"
	"neohunter/internal/core/status"
	"neohunter/internal/pkg/logger"
)

// DefaultTriggerTimeout 手动触发的最长执行时间
const DefaultTriggerTimeout = 10 * time.Minute

// HunterControlHandler 控制接口处理器
type HunterControlHandler interface {
	GetStatus(c *gin.Context)         // GET  /api/v1/status
	GetKnowledgeBase(c *gin.Context)  // GET  /api/v1/kb
	ListActions(c *gin.Context)       // GET  /api/v1/actions
	StartOrchestrator(c *gin.Context) // POST /api/v1/orchestrator/start
	StopOrchestrator(c *gin.Context)  // POST /api/v1/orchestrator/stop
	TriggerAction(c *gin.Context)     // POST /api/v1/actions/trigger
}

// TriggerRequest 手动触发请求体
type TriggerRequest struct {
	Action string `json:"action" binding:"required"`
	IP     string `json:"ip" binding:"required"`
}

// ActionView 动作列表项
type ActionView struct {
	model.ActionDescriptor
	Kind string `json:"kind"` // root/child/standalone/vuln
}

type hunterControlHandler struct {
	ctrl           *orchestrator.Controller
	store          *kb.Store
	board          *status.Board
	baseCtx        context.Context
	triggerTimeout time.Duration
}

// NewHunterControlHandler 创建控制处理器
// baseCtx 为进程级上下文，编排器与手动触发都派生自它
func NewHunterControlHandler(baseCtx context.Context, ctrl *orchestrator.Controller, store *kb.Store) HunterControlHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &hunterControlHandler{
		ctrl:           ctrl,
		store:          store,
		board:          ctrl.Orchestrator().Board(),
		baseCtx:        baseCtx,
		triggerTimeout: DefaultTriggerTimeout,
	}
}

// GetStatus 当前状态、计数与本机信息
func (h *hunterControlHandler) GetStatus(c *gin.Context) {
	snap := h.board.Snapshot()
	limiter := h.ctrl.Orchestrator().Limiter()
	success(c, http.StatusOK, "ok", gin.H{
		"orchestrator": gin.H{
			"running":        h.ctrl.Running(),
			"uptime_seconds": int64(h.ctrl.Uptime().Seconds()),
			"limiter": gin.H{
				"name":      limiter.Name(),
				"capacity":  limiter.Capacity(),
				"in_flight": limiter.InFlight(),
				"peak":      limiter.Peak(),
			},
		},
		"status": snap,
		"host":   status.CollectHostInfo(),
	})
}

// GetKnowledgeBase 知识库表格视图 (与 netkb.csv 同列)
func (h *hunterControlHandler) GetKnowledgeBase(c *gin.Context) {
	records := h.store.Read()
	table := model.TargetTable{ActionKeys: h.store.ActionKeys(), Targets: records}
	success(c, http.StatusOK, "ok", gin.H{
		"headers": table.Headers(),
		"rows":    table.Rows(),
		"summary": kb.Summarize(records),
	})
}

// ListActions 已加载动作
func (h *hunterControlHandler) ListActions(c *gin.Context) {
	set := h.ctrl.Orchestrator().Actions()
	views := make([]ActionView, 0, len(set.All()))
	for _, a := range set.Roots {
		views = append(views, ActionView{ActionDescriptor: a.Descriptor, Kind: "root"})
	}
	for _, a := range set.Children {
		views = append(views, ActionView{ActionDescriptor: a.Descriptor, Kind: "child"})
	}
	for _, a := range set.Standalone {
		views = append(views, ActionView{ActionDescriptor: a.Descriptor, Kind: "standalone"})
	}
	if set.Vuln != nil {
		views = append(views, ActionView{ActionDescriptor: set.Vuln.Descriptor, Kind: "vuln"})
	}
	success(c, http.StatusOK, "ok", views)
}

// StartOrchestrator 启动编排器 (手动模式)
func (h *hunterControlHandler) StartOrchestrator(c *gin.Context) {
	if err := h.ctrl.Start(h.baseCtx); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			fail(c, http.StatusConflict, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	logger.LogSystemEvent("control", "orchestrator_start", "Orchestrator started via control API", logger.InfoLevel, nil)
	success(c, http.StatusOK, "orchestrator started", gin.H{"running": true})
}

// StopOrchestrator 停止编排器，等待当前动作返回
func (h *hunterControlHandler) StopOrchestrator(c *gin.Context) {
	if !h.ctrl.Running() {
		fail(c, http.StatusConflict, "orchestrator is not running")
		return
	}
	h.ctrl.Stop()
	logger.LogSystemEvent("control", "orchestrator_stop", "Orchestrator stopped via control API", logger.InfoLevel, nil)
	success(c, http.StatusOK, "orchestrator stopped", gin.H{"running": false})
}

// TriggerAction 对指定 IP 手动执行动作
func (h *hunterControlHandler) TriggerAction(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(h.baseCtx, h.triggerTimeout)
	defer cancel()

	res, err := h.ctrl.Trigger(ctx, req.Action, req.IP)
	switch {
	case err == nil:
		success(c, http.StatusOK, "action executed", res)
	case errors.Is(err, orchestrator.ErrUnknownAction), errors.Is(err, kb.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		fail(c, http.StatusServiceUnavailable, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func success(c *gin.Context, code int, msg string, data interface{}) {
	c.JSON(code, gin.H{
		"status":    "success",
		"message":   msg,
		"timestamp": logger.NowFormatted(),
		"data":      data,
	})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"status":    "error",
		"message":   msg,
		"timestamp": logger.NowFormatted(),
	})
}
