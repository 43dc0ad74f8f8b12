package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"neohunter/internal/core/model"
	"neohunter/internal/pkg/logger"
	"neohunter/internal/pkg/utils"
)

var ErrAlreadyRunning = errors.New("orchestrator already running")

// TriggerResult 手动触发的结果
type TriggerResult struct {
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	IP      string    `json:"ip"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

// Controller 编排器的启停控制 (手动模式与控制接口使用)
type Controller struct {
	orch *Orchestrator

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

func NewController(orch *Orchestrator) *Controller {
	return &Controller{orch: orch}
}

// Orchestrator 被控制的编排器
func (c *Controller) Orchestrator() *Orchestrator {
	return c.orch
}

// Start 在后台启动编排器
func (c *Controller) Start(parent context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.cancel, c.done, c.started = cancel, done, time.Now()

	go func() {
		defer close(done)
		c.orch.Run(ctx)
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
	}()
	return nil
}

// Stop 取消编排器并等待其退出
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	<-done
	c.orch.Board().SetIdle()
	logger.Info("Orchestrator stopped by controller")
}

// Running 是否运行中
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Uptime 本次运行时长
func (c *Controller) Uptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return 0
	}
	return time.Since(c.started)
}

// Trigger 手动对 ip 执行 class 动作
func (c *Controller) Trigger(ctx context.Context, class, ip string) (*TriggerResult, error) {
	rec, err := c.orch.Trigger(ctx, class, ip)
	if err != nil {
		return nil, err
	}
	res := &TriggerResult{
		ID:      utils.GenerateUUID(),
		Action:  class,
		IP:      ip,
		Outcome: rec.Outcome.String(),
		At:      rec.At,
	}
	if rec.Outcome == model.OutcomeSkipped {
		res.At = time.Now()
	}
	logger.WithFields(map[string]interface{}{
		"trigger_id": res.ID,
		"action":     class,
		"ip":         ip,
		"outcome":    res.Outcome,
	}).Info("Manual action trigger")
	return res, nil
}
