/**
 * 凭据尝试引擎
 * @author: sun977
 * @date: 2026.02.06
 * @description: 所有爆破动作共用的有界工作池，按协议 Checker 逐一尝试 用户名×密码
 */

package brute

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"

	"neohunter/internal/core/model"
	"neohunter/internal/pkg/logger"
)

const (
	DefaultWorkers      = 40
	DefaultWatchdog     = 4 * time.Minute
	DefaultCheckTimeout = 5 * time.Second
)

// Sink 命中结果的落盘位置 (CredentialStore 实现)
type Sink interface {
	Append(records ...model.CrackedRecord) error
}

// Target 爆破目标
type Target struct {
	MAC      string
	IP       string
	Hostname string
	Port     int
}

// EngineConfig 引擎参数
type EngineConfig struct {
	Workers      int
	Watchdog     time.Duration // 从未建立连接时的最长等待
	CheckTimeout time.Duration // 单次尝试超时
	TimeWait     time.Duration // 同一 worker 两次尝试之间的间隔
}

// Engine 凭据尝试引擎
type Engine struct {
	cfg  EngineConfig
	sink Sink
}

// NewEngine 创建引擎，零值参数取默认值
func NewEngine(cfg EngineConfig, sink Sink) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = DefaultWatchdog
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	return &Engine{cfg: cfg, sink: sink}
}

// Run 对单个目标执行全部尝试，返回是否命中及全部命中记录
// 命中即加锁追加并落盘；ctx 取消或看门狗触发后，剩余尝试被丢弃
func (e *Engine) Run(ctx context.Context, target Target, creds []model.Credential, checker Checker) (bool, []model.CrackedRecord) {
	trials := append(append([]model.Credential(nil), creds...), checker.Extras()...)
	if len(trials) == 0 {
		return false, nil
	}

	queue := make(chan model.Credential, len(trials))
	for _, c := range trials {
		queue <- c
	}
	close(queue)

	var (
		stop        atomic.Bool
		established atomic.Bool
		mu          sync.Mutex
		results     []model.CrackedRecord
		wg          sync.WaitGroup
	)

	watchdog := time.AfterFunc(e.cfg.Watchdog, func() {
		if !established.Load() {
			stop.Store(true)
			logger.Warnf("%s watchdog fired for %s:%d, no connection established", checker.Name(), target.IP, target.Port)
		}
	})
	defer watchdog.Stop()

	workers := min(e.cfg.Workers, len(trials))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cred := range queue {
				if stop.Load() || ctx.Err() != nil {
					continue
				}

				hit, err := e.check(ctx, checker, target, cred)
				if connected(err) {
					established.Store(true)
				}
				if pterm.PrintDebugMessages {
					pterm.Debug.Printf("[Brute] %s %s:%d | User: %s | ok=%v err=%v\n",
						checker.Name(), target.IP, target.Port, cred.User, hit.OK, err)
				}

				if hit.OK {
					records := toRecords(target, cred, hit)
					mu.Lock()
					results = append(results, records...)
					if e.sink != nil {
						if err := e.sink.Append(records...); err != nil {
							logger.Errorf("Failed to persist %s credentials for %s: %v", checker.Name(), target.IP, err)
						}
					}
					mu.Unlock()
					logger.LogCredentialHit(checker.Name(), target.IP, target.Port, cred.User)
				}

				if e.cfg.TimeWait > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(e.cfg.TimeWait):
					}
				}
			}
		}()
	}
	wg.Wait()

	return len(results) > 0, results
}

func (e *Engine) check(ctx context.Context, checker Checker, target Target, cred model.Credential) (Hit, error) {
	checkCtx, cancel := context.WithTimeout(ctx, e.cfg.CheckTimeout)
	defer cancel()
	return checker.Check(checkCtx, target.IP, target.Port, cred)
}

func toRecords(target Target, cred model.Credential, hit Hit) []model.CrackedRecord {
	base := model.CrackedRecord{
		MAC:      target.MAC,
		IP:       target.IP,
		Hostname: target.Hostname,
		User:     cred.User,
		Password: cred.Password,
		Port:     target.Port,
	}
	if len(hit.Extras) == 0 {
		return []model.CrackedRecord{base}
	}
	out := make([]model.CrackedRecord, 0, len(hit.Extras))
	for _, extra := range hit.Extras {
		r := base
		r.Extra = extra
		out = append(out, r)
	}
	return out
}
