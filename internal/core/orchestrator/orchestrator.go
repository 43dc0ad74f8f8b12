/**
 * 编排器
 * @author: sun977
 * @date: 2026.02.10
 * @description: 调度主循环。每轮从知识库读取目标，按注册顺序尝试根动作与其子动作 (深度优先)，
 *               再扫一遍子动作；无可执行动作时进入空闲路径: 重新发现、漏洞扫描、独立动作、休眠。
 *               所有动作执行都经过全局并发闸门。
 */
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"neohunter/internal/config"
	"neohunter/internal/core/discovery"
	"neohunter/internal/core/kb"
	"neohunter/internal/core/lib/network/qos"
	"neohunter/internal/core/model"
	"neohunter/internal/core/registry"
	"neohunter/internal/core/status"
	"neohunter/internal/pkg/logger"
	"neohunter/internal/pkg/utils"
)

// DefaultActionConcurrency 全局动作并发上限
const DefaultActionConcurrency = 10

// Clock 时间源
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Discoverer 网络发现
type Discoverer interface {
	Scan(ctx context.Context) (*discovery.Result, error)
}

// Deps 编排器依赖的显式句柄
type Deps struct {
	Store     *kb.Store
	Actions   *registry.Set
	Discovery Discoverer
	Board     *status.Board
	Limiter   *qos.Limiter
	Clock     Clock
}

// CycleReport 一轮调度的结果
type CycleReport struct {
	ID        string        `json:"id"`
	Executed  int           `json:"executed"`  // 实际执行次数 (含失败)
	Succeeded int           `json:"succeeded"` // 成功次数
	Idle      bool          `json:"idle"`      // 是否走了空闲路径
	Duration  time.Duration `json:"duration"`
}

// Orchestrator 调度器
type Orchestrator struct {
	deps Deps

	mu          sync.RWMutex
	cfg         config.OrchestratorConfig
	vulnEnabled bool
	lastVuln    time.Time
}

// New 创建编排器
func New(deps Deps, cfg *config.OrchestratorConfig, vuln *config.VulnConfig) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Board == nil {
		deps.Board = status.NewBoard("")
	}
	if deps.Actions == nil {
		deps.Actions = &registry.Set{}
	}
	if deps.Limiter == nil {
		n := DefaultActionConcurrency
		if cfg != nil && cfg.ActionConcurrency > 0 {
			n = cfg.ActionConcurrency
		}
		deps.Limiter = qos.NewLimiter("actions", n)
	}
	o := &Orchestrator{deps: deps}
	o.UpdateConfig(cfg, vuln)
	return o
}

// UpdateConfig 热更新调度参数
func (o *Orchestrator) UpdateConfig(cfg *config.OrchestratorConfig, vuln *config.VulnConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cfg != nil {
		o.cfg = *cfg
	}
	o.vulnEnabled = vuln != nil && vuln.Enabled
}

func (o *Orchestrator) settings() (config.OrchestratorConfig, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg, o.vulnEnabled
}

// Actions 当前动作集合
func (o *Orchestrator) Actions() *registry.Set {
	return o.deps.Actions
}

// Board 状态板
func (o *Orchestrator) Board() *status.Board {
	return o.deps.Board
}

// Limiter 全局动作准入
func (o *Orchestrator) Limiter() *qos.Limiter {
	return o.deps.Limiter
}

// Run 首次发现后循环调度，直到 ctx 取消
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.LogSystemEvent("orchestrator", "start", "Orchestrator started", logger.InfoLevel, nil)
	defer func() {
		o.deps.Board.SetIdle()
		logger.LogSystemEvent("orchestrator", "stop", "Orchestrator stopped", logger.InfoLevel, nil)
	}()

	o.discover(ctx)
	for ctx.Err() == nil {
		o.Cycle(ctx)
	}
	return ctx.Err()
}

// Cycle 执行一轮调度
func (o *Orchestrator) Cycle(ctx context.Context) (report CycleReport) {
	cfg, vulnEnabled := o.settings()
	report.ID = utils.GenerateShortID("cycle")
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	if o.processTargets(ctx, &report) {
		return report
	}
	if ctx.Err() != nil {
		return report
	}

	report.Idle = true
	o.deps.Board.SetIdle()
	logger.Infof("[%s] No available targets, running network scan", report.ID)
	o.discover(ctx)

	progressed := o.processTargets(ctx, &report)
	if vulnEnabled && ctx.Err() == nil {
		o.vulnPass(ctx, cfg, &report)
	}

	if !progressed && ctx.Err() == nil {
		o.runStandalone(ctx, &report)
		o.deps.Board.SetIdle()
		logger.Infof("[%s] Nothing to do, next scan in %s", report.ID, cfg.ScanInterval)
		sleepCtx(ctx, cfg.ScanInterval)
	}
	return report
}

// processTargets 第 1、2 步。返回是否有动作成功
func (o *Orchestrator) processTargets(ctx context.Context, report *CycleReport) bool {
	set := o.deps.Actions
	progressed := false

	// 1. 逐目标尝试根动作，成功后立即尝试其子动作，再转向下一个目标
	for _, rec := range o.deps.Store.Read() {
		if ctx.Err() != nil {
			return progressed
		}
		if !rec.Alive || rec.IsStandalone() {
			continue
		}
		for _, root := range set.Roots {
			if ctx.Err() != nil {
				return progressed
			}
			if o.tryRun(ctx, root, rec, report) != model.OutcomeSuccess {
				continue
			}
			progressed = true
			for _, child := range set.ChildrenOf(root.Name()) {
				if o.tryRun(ctx, child, rec, report) == model.OutcomeSuccess {
					break
				}
			}
			break
		}
	}

	// 2. 子动作补扫 (父动作在之前的轮次成功)
	// 只看父动作结果，离线目标同样补扫
	records := o.deps.Store.Read()
	for _, child := range set.Children {
		for _, rec := range records {
			if ctx.Err() != nil {
				return progressed
			}
			if rec.IsStandalone() {
				continue
			}
			if o.tryRun(ctx, child, rec, report) == model.OutcomeSuccess {
				progressed = true
			}
		}
	}
	return progressed
}

// Eligible 动作在目标上当前是否可执行
func (o *Orchestrator) Eligible(a *registry.Action, rec *model.TargetRecord, now time.Time) bool {
	if a.Port() != 0 && !rec.HasPort(a.Port()) {
		return false
	}
	if a.Parent() != "" && !rec.Action(a.Parent()).Succeeded() {
		return false
	}
	cfg, _ := o.settings()
	policy := PolicyFrom(&cfg)
	cell := rec.Action(a.Key())
	if policy.Allows(cell, now) {
		return true
	}
	if wait := policy.RetryIn(cell, now); wait > 0 {
		logger.Debugf("Skipping %s for %s, last %s, retry possible in %s",
			a.Name(), rec.PrimaryIP(), cell.Outcome, wait.Truncate(time.Second))
	} else {
		logger.Debugf("Skipping %s for %s, already succeeded", a.Name(), rec.PrimaryIP())
	}
	return false
}

// tryRun 满足条件时执行，返回 OutcomeUnset 表示未执行
func (o *Orchestrator) tryRun(ctx context.Context, a *registry.Action, rec *model.TargetRecord, report *CycleReport) model.Outcome {
	if !o.Eligible(a, rec, o.deps.Clock.Now()) {
		return model.OutcomeUnset
	}
	outcome, err := o.execute(ctx, a, rec)
	if err != nil {
		return model.OutcomeUnset
	}
	if outcome != model.OutcomeSkipped {
		report.Executed++
	}
	if outcome == model.OutcomeSuccess {
		report.Succeeded++
	}
	return outcome
}

// execute 获取并发许可，执行并立即写回知识库
// rec 的动作单元格同步更新，使同一轮中的子动作能看到父动作结果
func (o *Orchestrator) execute(ctx context.Context, a *registry.Action, rec *model.TargetRecord) (model.Outcome, error) {
	if err := o.deps.Limiter.Acquire(ctx); err != nil {
		return model.OutcomeUnset, err
	}
	defer o.deps.Limiter.Release()

	ip := rec.PrimaryIP()
	o.deps.Board.SetAction(a.Name(), ip)
	logger.Infof("Executing action %s for %s:%d", a.Name(), ip, a.Port())

	start := time.Now()
	outcome := a.Run(ctx, ip, rec.Clone())
	if outcome == model.OutcomeSkipped || outcome == model.OutcomeUnset {
		return model.OutcomeSkipped, nil
	}

	result := model.NewActionRecord(outcome, o.deps.Clock.Now())
	rec.SetAction(a.Key(), result)
	if err := o.deps.Store.RecordOutcome(rec.MAC, a.Key(), result); err != nil {
		logger.Errorf("Failed to record %s outcome for %s: %v", a.Name(), rec.MAC, err)
	}
	logger.LogActionOperation(a.Name(), ip, outcome.String(), time.Since(start), map[string]interface{}{
		"port": a.Port(),
		"mac":  rec.MAC,
	})
	return outcome, nil
}

func (o *Orchestrator) discover(ctx context.Context) {
	if o.deps.Discovery == nil || ctx.Err() != nil {
		return
	}
	o.deps.Board.SetStatus(status.KindNetworkScanner, registry.ClassNetworkScanner, "")
	if _, err := o.deps.Discovery.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Network scan failed: %v", err)
	}
	o.deps.Board.SetIdle()
}

// vulnPass 间隔到期后对全部存活目标执行漏洞扫描 (同样受退避约束)
// 漏洞扫描不计入本轮进展
func (o *Orchestrator) vulnPass(ctx context.Context, cfg config.OrchestratorConfig, report *CycleReport) {
	vuln := o.deps.Actions.Vuln
	if vuln == nil {
		return
	}
	now := o.deps.Clock.Now()
	o.mu.RLock()
	last := o.lastVuln
	o.mu.RUnlock()
	if !last.IsZero() && now.Before(last.Add(cfg.ScanVulnInterval)) {
		return
	}

	logger.Infof("[%s] Starting vulnerability scans", report.ID)
	for _, rec := range o.deps.Store.Read() {
		if ctx.Err() != nil {
			return
		}
		if !rec.Alive || rec.IsStandalone() {
			continue
		}
		o.tryRun(ctx, vuln, rec, report)
	}

	o.mu.Lock()
	o.lastVuln = now
	o.mu.Unlock()
}

// runStandalone 依次执行独立动作，首个成功即停止
func (o *Orchestrator) runStandalone(ctx context.Context, report *CycleReport) {
	if len(o.deps.Actions.Standalone) == 0 {
		return
	}
	if err := o.deps.Store.EnsureStandalone(); err != nil {
		logger.Errorf("Failed to prepare standalone target: %v", err)
		return
	}
	rec, err := o.deps.Store.Get(model.StandaloneMAC)
	if err != nil {
		logger.Errorf("Standalone target missing: %v", err)
		return
	}

	cfg, _ := o.settings()
	policy := PolicyFrom(&cfg)
	for _, a := range o.deps.Actions.Standalone {
		if ctx.Err() != nil {
			return
		}
		if !policy.Allows(rec.Action(a.Key()), o.deps.Clock.Now()) {
			continue
		}
		if err := o.deps.Limiter.Acquire(ctx); err != nil {
			return
		}
		o.deps.Board.SetStatus(status.KindStandalone, a.Name(), "")
		outcome := a.RunStandalone(ctx)
		o.deps.Limiter.Release()

		if outcome == model.OutcomeSkipped || outcome == model.OutcomeUnset {
			continue
		}
		report.Executed++
		result := model.NewActionRecord(outcome, o.deps.Clock.Now())
		rec.SetAction(a.Key(), result)
		if err := o.deps.Store.RecordOutcome(model.StandaloneMAC, a.Key(), result); err != nil {
			logger.Errorf("Failed to record %s outcome: %v", a.Name(), err)
		}
		if outcome == model.OutcomeSuccess {
			report.Succeeded++
			logger.Infof("Standalone action %s executed successfully", a.Name())
			return
		}
		logger.Warnf("Standalone action %s failed", a.Name())
	}
}

// Trigger 手动执行单个网络动作，跳过退避检查
func (o *Orchestrator) Trigger(ctx context.Context, class, ip string) (model.ActionRecord, error) {
	a := o.deps.Actions.Find(class)
	if a == nil {
		return model.ActionRecord{}, ErrUnknownAction
	}
	rec, err := o.deps.Store.FindByIP(ip)
	if err != nil {
		return model.ActionRecord{}, err
	}

	outcome, err := o.execute(ctx, a, rec)
	if err != nil {
		return model.ActionRecord{}, err
	}
	if outcome == model.OutcomeSkipped {
		return model.ActionRecord{Outcome: model.OutcomeSkipped}, nil
	}
	return rec.Action(a.Key()), nil
}

// ErrUnknownAction 动作未加载
var ErrUnknownAction = errors.New("action not loaded")

// sleepCtx 可被取消的休眠
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
