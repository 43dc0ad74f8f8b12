package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher 配置文件监听器
//
// 工作原理：
// 1. 使用 fsnotify 监听配置文件所在目录
// 2. 配置文件写入/创建/重命名后防抖重载
// 3. 通过回调函数把新配置推给运行中的组件 (重试策略、黑名单、日志级别)
//
// 注意: 端口范围、并发上限等结构性参数在运行期变更不会生效，需要重启
type ConfigWatcher struct {
	configFile  string
	envPrefix   string
	config      *Config
	watcher     *fsnotify.Watcher
	callbacks   []ConfigChangeCallback
	onError     func(error)
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	reloadDelay time.Duration
	timer       *time.Timer
}

// ConfigChangeCallback 配置变更回调函数
type ConfigChangeCallback func(oldConfig, newConfig *Config) error

// NewConfigWatcher 创建配置监听器
// configFile 必须是已存在的配置文件，current 为当前生效配置
func NewConfigWatcher(configFile string, current *Config) (*ConfigWatcher, error) {
	if configFile == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConfigWatcher{
		configFile:  configFile,
		envPrefix:   DefaultEnvPrefix,
		config:      current,
		watcher:     watcher,
		callbacks:   make([]ConfigChangeCallback, 0),
		onError:     func(err error) { fmt.Fprintf(os.Stderr, "config watcher: %v\n", err) },
		ctx:         ctx,
		cancel:      cancel,
		reloadDelay: 1 * time.Second, // 防抖延迟
	}, nil
}

// SetErrorHandler 设置错误处理函数 (通常接入 logger)
func (cw *ConfigWatcher) SetErrorHandler(fn func(error)) {
	if fn == nil {
		return
	}
	cw.mu.Lock()
	cw.onError = fn
	cw.mu.Unlock()
}

// SetReloadDelay 设置防抖延迟
func (cw *ConfigWatcher) SetReloadDelay(d time.Duration) {
	cw.mu.Lock()
	cw.reloadDelay = d
	cw.mu.Unlock()
}

// Start 启动配置监听
func (cw *ConfigWatcher) Start() error {
	// 编辑器常用"写临时文件再重命名"，监听文件本身会丢事件，改为监听目录
	dir := dirOf(cw.configFile)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config dir %s: %w", dir, err)
	}

	go cw.watchLoop()
	return nil
}

// Stop 停止配置监听
func (cw *ConfigWatcher) Stop() error {
	cw.cancel()
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	return cw.watcher.Close()
}

// GetConfig 获取当前配置
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// AddCallback 添加配置变更回调
func (cw *ConfigWatcher) AddCallback(callback ConfigChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// watchLoop 监听循环
func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.reportError(err)
		}
	}
}

// handleFileEvent 处理文件事件
func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if !sameFile(event.Name, cw.configFile) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	// 防抖: 连续事件只触发最后一次重载
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.reloadDelay, func() {
		if cw.ctx.Err() != nil {
			return
		}
		if err := cw.reloadConfig(); err != nil {
			cw.reportError(err)
		}
	})
}

// reloadConfig 重新加载配置
func (cw *ConfigWatcher) reloadConfig() error {
	newConfig, err := NewConfigLoader(cw.configFile, cw.envPrefix).LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	cw.mu.RLock()
	oldConfig := cw.config
	callbacks := append([]ConfigChangeCallback(nil), cw.callbacks...)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			return fmt.Errorf("config change callback failed: %w", err)
		}
	}

	cw.mu.Lock()
	cw.config = newConfig
	cw.mu.Unlock()
	return nil
}

func (cw *ConfigWatcher) reportError(err error) {
	cw.mu.RLock()
	fn := cw.onError
	cw.mu.RUnlock()
	fn(err)
}

// ValidateConfigChange 验证配置变更
// 数据路径在运行期不允许变更，否则知识库会被拆分到两个文件
func ValidateConfigChange(oldConfig, newConfig *Config) error {
	if oldConfig == nil || newConfig == nil {
		return nil
	}
	if oldConfig.Paths.NetKBFile != newConfig.Paths.NetKBFile {
		return fmt.Errorf("netkb_file cannot be changed during runtime")
	}
	if oldConfig.Paths.ActionsFile != newConfig.Paths.ActionsFile {
		return fmt.Errorf("actions_file cannot be changed during runtime")
	}
	return nil
}

func dirOf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Dir(path)
	}
	return filepath.Dir(abs)
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
