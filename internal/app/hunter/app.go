/**
 * Hunter应用程序核心逻辑
 * @author: sun977
 * @date: 2026.02.10
 * @description: 负责把配置、知识库、状态板、发现引擎、动作注册表、编排器与控制接口组装起来
 * @architecture: 应用逻辑从 main 中分离，cmd 层只负责参数解析
 */

package hunter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"neohunter/internal/app/hunter/middleware"
	"neohunter/internal/app/hunter/router"
	"neohunter/internal/config"
	"neohunter/internal/core/actions"
	"neohunter/internal/core/discovery"
	"neohunter/internal/core/kb"
	"neohunter/internal/core/lib/network/dialer"
	"neohunter/internal/core/orchestrator"
	"neohunter/internal/core/registry"
	"neohunter/internal/core/scanner/vuln"
	"neohunter/internal/core/status"
	"neohunter/internal/handler/control"
	"neohunter/internal/pkg/logger"
)

// App Hunter应用程序
type App struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	configFile string
	localMAC   string
	logger     *logger.LoggerManager

	store     *kb.Store
	board     *status.Board
	actions   *registry.Set
	discovery *discovery.Engine
	vuln      *vuln.Scanner
	orch      *orchestrator.Orchestrator
	ctrl      *orchestrator.Controller

	router     *router.Router
	httpServer *http.Server
	watcher    *config.ConfigWatcher

	runCtx    context.Context
	runCancel context.CancelFunc
}

// Options 构造选项
type Options struct {
	// ConfigFile 实际使用的配置文件，非空时启用热重载
	ConfigFile string
	// DetectLocalNet 是否探测本机网卡并把本机 MAC 加入黑名单
	DetectLocalNet bool
}

// NewApp 加载配置并创建应用
func NewApp(configPath string) (*App, error) {
	loader := config.NewConfigLoader(configPath, config.DefaultEnvPrefix)
	cfg, err := loader.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logger.LoggerInstance == nil {
		if _, err := logger.InitLogger(cfg.Log); err != nil {
			return nil, fmt.Errorf("failed to init logger: %w", err)
		}
	}

	return New(cfg, Options{ConfigFile: loader.GetConfigPath(), DetectLocalNet: true})
}

// New 用已加载的配置组装应用
// 只有知识库无法打开时返回错误，其余组件失败只记录日志
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil || cfg.Paths == nil {
		return nil, fmt.Errorf("config is incomplete")
	}
	logger.Info("NeoHunter application initializing...")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Errorf("Failed to prepare directories: %v", err)
	}

	a := &App{
		cfg:        cfg,
		configFile: opts.ConfigFile,
		logger:     logger.LoggerInstance,
	}

	if cfg.Discovery != nil {
		if err := dialer.Configure(cfg.Discovery.Proxy, cfg.Discovery.PortTimeout); err != nil {
			logger.Errorf("Invalid proxy %q, using direct connections: %v", cfg.Discovery.Proxy, err)
		}
		if opts.DetectLocalNet {
			a.blacklistLocalMAC(cfg.Discovery)
		}
	}

	store, err := kb.Open(cfg.Paths.NetKBFile, nil)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.board = status.NewBoard(cfg.Paths.LiveStatusFile)
	if err := a.board.Load(); err != nil {
		logger.Warnf("Failed to restore live status: %v", err)
	}

	a.vuln = vuln.NewScanner(cfg.Vuln, cfg.Paths.VulnerabilitiesDir)

	reg := registry.NewRegistry()
	actions.Register(reg, actions.Deps{
		Config: a.Config,
		Store:  store,
		Board:  a.board,
		Vuln:   a.vuln,
	})
	set, err := reg.Load(cfg.Paths.ActionsFile)
	if err != nil {
		logger.Errorf("Failed to load actions from %s: %v", cfg.Paths.ActionsFile, err)
		set = &registry.Set{}
	}
	a.actions = set
	store.RegisterActions(set.Keys()...)

	a.discovery = discovery.NewEngine(cfg.Discovery, cfg.Paths.ScanResultsDir, store, a.board)

	a.orch = orchestrator.New(orchestrator.Deps{
		Store:     store,
		Actions:   set,
		Discovery: a.discovery,
		Board:     a.board,
	}, cfg.Orchestrator, cfg.Vuln)
	a.ctrl = orchestrator.NewController(a.orch)

	logger.LogSystemEvent("app", "init", "NeoHunter initialized", logger.InfoLevel, map[string]interface{}{
		"roots":      len(set.Roots),
		"children":   len(set.Children),
		"standalone": len(set.Standalone),
		"netkb":      store.Path(),
	})
	return a, nil
}

// blacklistLocalMAC 本机 MAC 不参与扫描
func (a *App) blacklistLocalMAC(d *config.DiscoveryConfig) {
	ln, err := discovery.DetectLocalNetwork(d.Interface)
	if err != nil {
		logger.Warnf("Failed to detect local network: %v", err)
		return
	}
	a.localMAC = ln.MAC
	if d.AddMACToBlacklist(ln.MAC) {
		logger.Infof("Local MAC %s added to scan blacklist", ln.MAC)
	}
}

// Config 当前生效配置
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Store 知识库
func (a *App) Store() *kb.Store { return a.store }

// Board 状态板
func (a *App) Board() *status.Board { return a.board }

// Actions 已加载动作
func (a *App) Actions() *registry.Set { return a.actions }

// Discovery 网络发现引擎
func (a *App) Discovery() *discovery.Engine { return a.discovery }

// Controller 编排器控制
func (a *App) Controller() *orchestrator.Controller { return a.ctrl }

// Handler 控制接口 (未启动 HTTP 服务时也可用于测试)
func (a *App) Handler(ctx context.Context) http.Handler {
	if a.router == nil {
		a.router = a.newRouter(ctx)
	}
	return a.router.GetEngine()
}

func (a *App) newRouter(ctx context.Context) *router.Router {
	cfg := a.Config()
	rc := &router.RouterConfig{Logging: &middleware.LoggingConfig{
		SkipPaths:            []string{"/health"},
		SlowRequestThreshold: 2 * time.Second,
	}}
	if cfg.Server != nil {
		rc.Mode = cfg.Server.Mode
	}
	if cfg.App != nil {
		rc.Version = cfg.App.Version
	}
	return router.NewRouter(rc, control.NewHunterControlHandler(ctx, a.ctrl, a.store))
}

// Start 启动配置监听、控制接口与编排器
// manual_mode 下编排器由控制接口启动
func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(ctx)
	cfg := a.Config()

	a.startWatcher()

	if cfg.Server != nil && cfg.Server.Enabled {
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		a.httpServer = &http.Server{
			Addr:         addr,
			Handler:      a.Handler(a.runCtx),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Control API stopped: %v", err)
			}
		}()
		logger.Infof("Control API listening on %s", addr)
	}

	if cfg.App != nil && cfg.App.ManualMode {
		logger.Info("Manual mode enabled, orchestrator waits for a start command")
		return nil
	}

	go func() {
		delay := time.Duration(0)
		if cfg.App != nil {
			delay = cfg.App.StartupDelay
		}
		if delay > 0 {
			logger.Infof("Orchestrator starts in %s", delay)
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-a.runCtx.Done():
				return
			case <-t.C:
			}
		}
		if err := a.ctrl.Start(a.runCtx); err != nil && !errors.Is(err, orchestrator.ErrAlreadyRunning) {
			logger.Errorf("Failed to start orchestrator: %v", err)
		}
	}()
	return nil
}

// Stop 停止编排器、控制接口与配置监听
func (a *App) Stop(ctx context.Context) error {
	logger.Info("Stopping NeoHunter...")
	if a.runCancel != nil {
		a.runCancel()
	}
	a.ctrl.Stop()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop control API: %w", err))
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop config watcher: %w", err))
		}
	}
	logger.LogSystemEvent("app", "stop", "NeoHunter stopped", logger.InfoLevel, nil)
	return errors.Join(errs...)
}

// Run 启动并阻塞到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Stop(shutdownCtx)
}

func (a *App) startWatcher() {
	if a.configFile == "" {
		return
	}
	w, err := config.NewConfigWatcher(a.configFile, a.Config())
	if err != nil {
		logger.Warnf("Config hot reload disabled: %v", err)
		return
	}
	w.SetErrorHandler(func(err error) { logger.Errorf("Config reload failed: %v", err) })
	w.AddCallback(a.applyConfig)
	if err := w.Start(); err != nil {
		logger.Warnf("Config hot reload disabled: %v", err)
		return
	}
	a.watcher = w
}

// applyConfig 把新配置推给运行中的组件
// 端口范围、并发上限等结构性参数需要重启才能生效
func (a *App) applyConfig(oldCfg, newCfg *config.Config) error {
	if newCfg.Discovery != nil && a.localMAC != "" {
		newCfg.Discovery.AddMACToBlacklist(a.localMAC)
	}

	a.cfgMu.Lock()
	a.cfg = newCfg
	a.cfgMu.Unlock()

	a.orch.UpdateConfig(newCfg.Orchestrator, newCfg.Vuln)
	a.discovery.UpdateConfig(newCfg.Discovery)
	a.vuln.UpdateConfig(newCfg.Vuln)
	if newCfg.Discovery != nil {
		if err := dialer.Configure(newCfg.Discovery.Proxy, newCfg.Discovery.PortTimeout); err != nil {
			logger.Errorf("Invalid proxy %q: %v", newCfg.Discovery.Proxy, err)
		}
	}
	if a.logger != nil && newCfg.Log != nil {
		if err := a.logger.UpdateConfig(newCfg.Log); err != nil {
			return err
		}
	}

	logger.LogSystemEvent("config", "reload", "Configuration reloaded", logger.InfoLevel, nil)
	return nil
}
