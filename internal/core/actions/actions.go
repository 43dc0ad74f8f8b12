/**
 * 内置动作
 * @author: sun977
 * @date: 2026.02.08
 * @description: 爆破、数据窃取、漏洞扫描、独立动作的实现，通过 Register 挂到注册表的工厂表上。
 */
package actions

import (
	"fmt"
	"path/filepath"
	"sync"

	"neohunter/internal/config"
	"neohunter/internal/core/kb"
	"neohunter/internal/core/model"
	"neohunter/internal/core/registry"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/core/scanner/vuln"
	"neohunter/internal/core/status"
)

// Deps 动作运行所需的显式句柄
type Deps struct {
	Config func() *config.Config // 每次执行读取，支持热更新
	Store  *kb.Store
	Board  *status.Board
	Vuln   *vuln.Scanner
}

func (d Deps) config() *config.Config {
	if d.Config == nil {
		return &config.Config{}
	}
	return d.Config()
}

// Register 把内置动作工厂挂到注册表
func Register(reg *registry.Registry, deps Deps) {
	stores := newCredentialStores(deps.config().Paths)

	for class, p := range bruteProtocols {
		p := p
		reg.Register(class, func(desc model.ActionDescriptor) (interface{}, error) {
			store, err := stores.get(p.name, p.extraColumn)
			if err != nil {
				return nil, err
			}
			return NewBruteforceAction(p.name, p.newChecker(deps.config()), store, deps), nil
		})
	}

	reg.Register("StealFilesSSH", func(desc model.ActionDescriptor) (interface{}, error) {
		store, err := stores.get("ssh", "")
		if err != nil {
			return nil, err
		}
		return NewStealFilesSSH(store, deps), nil
	})
	reg.Register("StealFilesFTP", func(desc model.ActionDescriptor) (interface{}, error) {
		store, err := stores.get("ftp", "")
		if err != nil {
			return nil, err
		}
		return NewStealFilesFTP(store, deps), nil
	})
	reg.Register("StealFilesTelnet", func(desc model.ActionDescriptor) (interface{}, error) {
		store, err := stores.get("telnet", "")
		if err != nil {
			return nil, err
		}
		return NewStealFilesTelnet(store, deps), nil
	})
	reg.Register("StealDataSQL", func(desc model.ActionDescriptor) (interface{}, error) {
		store, err := stores.get("sql", "Database")
		if err != nil {
			return nil, err
		}
		return NewStealDataSQL(store, deps), nil
	})

	reg.Register(registry.ClassVulnScanner, func(desc model.ActionDescriptor) (interface{}, error) {
		if deps.Vuln == nil {
			return nil, fmt.Errorf("vulnerability scanner not configured")
		}
		return NewVulnScanAction(deps), nil
	})
	reg.Register("LogStandalone", func(desc model.ActionDescriptor) (interface{}, error) {
		return NewLogStandalone(desc.Class), nil
	})
}

// credentialStores 每个协议一个凭据文件，爆破动作与其子动作共用同一实例 (同一把锁)
type credentialStores struct {
	mu     sync.Mutex
	dir    string
	stores map[string]*brute.CredentialStore
}

func newCredentialStores(paths *config.PathsConfig) *credentialStores {
	dir := filepath.Join("data", "output", "crackedpwd")
	if paths != nil && paths.CrackedPwdDir != "" {
		dir = paths.CrackedPwdDir
	}
	return &credentialStores{dir: dir, stores: make(map[string]*brute.CredentialStore)}
}

func (c *credentialStores) get(proto, extraColumn string) (*brute.CredentialStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stores[proto]; ok {
		return s, nil
	}
	s, err := brute.NewCredentialStore(filepath.Join(c.dir, proto+".csv"), extraColumn)
	if err != nil {
		return nil, err
	}
	c.stores[proto] = s
	return s, nil
}
