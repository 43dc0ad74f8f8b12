package actions

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"neohunter/internal/config"
	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/pkg/logger"
)

// DefaultStealWatchdog 从未建立连接时的最长等待
const DefaultStealWatchdog = 4 * time.Minute

// fileMatcher 按文件名关键字 (子串) 或扩展名 (后缀) 匹配
type fileMatcher struct {
	names      []string
	extensions []string
}

func newFileMatcher(cfg *config.StealConfig) fileMatcher {
	if cfg == nil {
		return fileMatcher{}
	}
	return fileMatcher{names: cfg.FileNames, extensions: cfg.FileExtensions}
}

func (m fileMatcher) Match(p string) bool {
	for _, ext := range m.extensions {
		if ext != "" && strings.HasSuffix(p, ext) {
			return true
		}
	}
	for _, name := range m.names {
		if name != "" && strings.Contains(p, name) {
			return true
		}
	}
	return false
}

// watchdog 计时结束前从未连接成功则置停止标志
type watchdog struct {
	connected atomic.Bool
	stopped   atomic.Bool
	timer     *time.Timer
}

func startWatchdog(d time.Duration, label string) *watchdog {
	if d <= 0 {
		d = DefaultStealWatchdog
	}
	w := &watchdog{}
	w.timer = time.AfterFunc(d, func() {
		if !w.connected.Load() {
			w.stopped.Store(true)
			logger.Warnf("%s: no connection established within %s, giving up", label, d)
		}
	})
	return w
}

func (w *watchdog) MarkConnected() { w.connected.Store(true) }
func (w *watchdog) Stopped() bool  { return w.stopped.Load() }
func (w *watchdog) Stop()          { w.timer.Stop() }

// stolenDir data_stolen/<proto>/<mac>_<ip>[/<sub>]
func stolenDir(cfg *config.Config, proto, mac, ip string, sub ...string) string {
	base := filepath.Join("data", "output", "data_stolen")
	if cfg.Paths != nil && cfg.Paths.DataStolenDir != "" {
		base = cfg.Paths.DataStolenDir
	}
	parts := append([]string{base, proto, fmt.Sprintf("%s_%s", mac, ip)}, sub...)
	return filepath.Join(parts...)
}

// localPath 远端绝对路径映射到本地目录下，不允许越出 base
func localPath(base, remote string) string {
	clean := path.Clean("/" + filepath.ToSlash(remote))
	return filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

// credentialsFor 父动作凭据文件中属于该 IP 的凭据
func credentialsFor(store *brute.CredentialStore, ip string) []model.CrackedRecord {
	if store == nil {
		return nil
	}
	records, err := store.ForIP(ip)
	if err != nil {
		logger.Errorf("Failed to read credentials from %s: %v", store.Path(), err)
		return nil
	}
	return records
}

func stealWatchdog(cfg *config.Config) time.Duration {
	if cfg.Bruteforce != nil && cfg.Bruteforce.Watchdog > 0 {
		return cfg.Bruteforce.Watchdog
	}
	return DefaultStealWatchdog
}
