package dialer

import (
	"sync"
	"time"

	"neohunter/internal/pkg/logger"
)

var (
	globalMu     sync.RWMutex
	globalDialer Dialer = NewDefaultDialer(DefaultTimeout)
)

// SetGlobalDialer 设置全局拨号器 (配置了 socks5 代理时)
func SetGlobalDialer(d Dialer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalDialer = d
}

// Get 获取全局拨号器
func Get() Dialer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalDialer
}

// Configure 根据代理地址设置全局拨号器，proxyAddr 为空时恢复直连
func Configure(proxyAddr string, timeout time.Duration) error {
	var d Dialer = NewDefaultDialer(timeout)
	if proxyAddr != "" {
		pd, err := NewProxyDialer(proxyAddr, timeout)
		if err != nil {
			return err
		}
		d = pd
	}
	SetGlobalDialer(d)
	logger.Debugf("Network dialer: %s", Describe(d))
	return nil
}
