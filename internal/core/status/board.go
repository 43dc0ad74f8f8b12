/**
 * 实时状态
 * @author: sun977
 * @date: 2026.02.05
 * @description: 编排器写、显示端与控制接口只读的状态侧通道，同时落盘为 livestatus.csv
 */

package status

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

var liveStatusHeader = []string{"Total Open Ports", "Alive Hosts Count", "All Known Hosts Count", "Vulnerabilities Count"}

// Counters 汇总计数
type Counters struct {
	OpenPorts       int `json:"open_ports"`
	AliveHosts      int `json:"alive_hosts"`
	KnownHosts      int `json:"known_hosts"`
	Vulnerabilities int `json:"vulnerabilities"`
}

// Snapshot 状态快照
type Snapshot struct {
	Kind      Kind      `json:"-"`
	Status    string    `json:"status"`
	Behavior  Behavior  `json:"behavior"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Counters  Counters  `json:"counters"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board 实时状态板
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
	path string
}

// NewBoard 创建状态板，path 为空时不落盘
func NewBoard(path string) *Board {
	b := &Board{path: path}
	b.snap.Kind = KindIdle
	b.snap.Status = KindIdle.String()
	b.snap.Behavior = BehaviorFor(KindIdle)
	b.snap.UpdatedAt = time.Now()
	return b
}

// SetStatus 设置当前状态、动作与目标
func (b *Board) SetStatus(kind Kind, action, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Kind = kind
	b.snap.Status = kind.String()
	b.snap.Behavior = BehaviorFor(kind)
	b.snap.Action = action
	b.snap.Target = target
	b.snap.UpdatedAt = time.Now()
}

// SetAction 按动作类名设置状态
func (b *Board) SetAction(class, target string) {
	b.SetStatus(KindForAction(class), class, target)
}

// SetIdle 回到空闲
func (b *Board) SetIdle() {
	b.SetStatus(KindIdle, "", "")
}

// SetHostCounters 更新主机计数并落盘
func (b *Board) SetHostCounters(openPorts, aliveHosts, knownHosts int) error {
	b.mu.Lock()
	b.snap.Counters.OpenPorts = openPorts
	b.snap.Counters.AliveHosts = aliveHosts
	b.snap.Counters.KnownHosts = knownHosts
	b.snap.UpdatedAt = time.Now()
	counters := b.snap.Counters
	b.mu.Unlock()
	return b.persist(counters)
}

// SetVulnerabilities 更新漏洞计数并落盘
func (b *Board) SetVulnerabilities(n int) error {
	b.mu.Lock()
	b.snap.Counters.Vulnerabilities = n
	b.snap.UpdatedAt = time.Now()
	counters := b.snap.Counters
	b.mu.Unlock()
	return b.persist(counters)
}

// Snapshot 返回当前快照副本
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// Load 从 livestatus.csv 恢复计数 (启动时)
func (b *Board) Load() error {
	if b.path == "" {
		return nil
	}
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("invalid livestatus file: %w", err)
	}
	if len(rows) < 2 || len(rows[1]) < len(liveStatusHeader) {
		return nil
	}
	vals := make([]int, len(liveStatusHeader))
	for i := range vals {
		vals[i], _ = strconv.Atoi(rows[1][i])
	}

	b.mu.Lock()
	b.snap.Counters = Counters{OpenPorts: vals[0], AliveHosts: vals[1], KnownHosts: vals[2], Vulnerabilities: vals[3]}
	b.mu.Unlock()
	return nil
}

func (b *Board) persist(c Counters) error {
	if b.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return err
	}
	f, err := os.Create(b.path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write(liveStatusHeader)
	w.Write([]string{
		strconv.Itoa(c.OpenPorts),
		strconv.Itoa(c.AliveHosts),
		strconv.Itoa(c.KnownHosts),
		strconv.Itoa(c.Vulnerabilities),
	})
	w.Flush()
	return w.Error()
}

// HostInfo 本机信息 (控制接口 /status 使用)
type HostInfo struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	MemTotal      uint64  `json:"mem_total"`
	MemUsedPct    float64 `json:"mem_used_percent"`
}

// CollectHostInfo 采集本机信息，采集失败的字段留空
func CollectHostInfo() HostInfo {
	var info HostInfo
	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform + " " + h.PlatformVersion
		info.UptimeSeconds = h.Uptime
	}
	if m, err := mem.VirtualMemory(); err == nil {
		info.MemTotal = m.Total
		info.MemUsedPct = m.UsedPercent
	}
	return info
}
