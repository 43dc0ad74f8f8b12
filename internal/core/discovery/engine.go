/**
 * 网络发现引擎
 * @author: sun977
 * @date: 2026.02.03
 * @description: 存活探测 -> 主机名/MAC 解析 -> 端口扫描 -> 并入知识库 -> 落盘扫描结果
 * @func: Engine.Discover / Engine.Scan
 */

package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"neohunter/internal/config"
	"neohunter/internal/core/kb"
	"neohunter/internal/core/lib/network/qos"
	"neohunter/internal/core/model"
	"neohunter/internal/core/reporter"
	"neohunter/internal/core/scanner/alive"
	"neohunter/internal/core/scanner/port"
	"neohunter/internal/core/status"
	"neohunter/internal/pkg/logger"
	"neohunter/internal/pkg/utils"
)

// ActionName 网络发现在状态板上的动作名
const ActionName = "NetworkScanner"

const artifactTimeLayout = "20060102_150405"

// HostSweeper 存活探测
type HostSweeper interface {
	SweepHosts(ctx context.Context, ips []string) []alive.Host
}

// PortScanner 端口扫描
type PortScanner interface {
	ScanHost(ctx context.Context, ip string, ports []int) []int
}

// NameResolver 反向解析主机名，失败返回空串
type NameResolver func(ctx context.Context, ip string) string

// DiscoverOptions 单轮发现参数
type DiscoverOptions struct {
	Network    string // 为空则自动探测本机网段
	PortStart  int    // 含
	PortEnd    int    // 不含
	ExtraPorts []int
}

// Result 单轮发现结果
type Result struct {
	Network    string              `json:"network"`
	Hosts      model.HostTable     `json:"hosts"`
	Alive      map[string]struct{} `json:"-"`
	Summary    kb.Summary          `json:"summary"`
	Duration   time.Duration       `json:"duration"`
	ScanFile   string              `json:"scan_file,omitempty"`
	ResultFile string              `json:"result_file,omitempty"`
}

// Engine 网络发现引擎
type Engine struct {
	cfgMu sync.RWMutex
	cfg   *config.DiscoveryConfig

	passMu sync.Mutex // 同一时刻只跑一轮

	store      *kb.Store
	board      *status.Board
	resultsDir string

	sweeper     HostSweeper
	ports       PortScanner
	macs        *MACResolver
	resolveName NameResolver
	now         func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithSweeper 替换存活探测
func WithSweeper(s HostSweeper) Option { return func(e *Engine) { e.sweeper = s } }

// WithPortScanner 替换端口扫描
func WithPortScanner(p PortScanner) Option { return func(e *Engine) { e.ports = p } }

// WithMACLookup 替换 MAC 查询 (重试策略沿用配置)
func WithMACLookup(l MACLookup) Option {
	return func(e *Engine) { e.macs = NewMACResolver(l, e.cfg.MACRetries, e.cfg.MACRetryDelay) }
}

// WithNameResolver 替换主机名解析
func WithNameResolver(r NameResolver) Option { return func(e *Engine) { e.resolveName = r } }

// WithClock 替换时钟 (结果文件命名)
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine 创建发现引擎
func NewEngine(cfg *config.DiscoveryConfig, resultsDir string, store *kb.Store, board *status.Board, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		store:       store,
		board:       board,
		resultsDir:  resultsDir,
		resolveName: reverseLookup,
		now:         time.Now,
	}

	arp := alive.NewArpTable()
	e.sweeper = alive.NewSweeper(alive.NewDefaultProber(os.Geteuid() == 0, arp), cfg.HostConcurrency, cfg.AliveTimeout)
	e.ports = port.NewScanner(qos.NewLimiter("ports", cfg.PortConcurrency), cfg.PortTimeout, nil)
	e.macs = NewMACResolver(arp, cfg.MACRetries, cfg.MACRetryDelay)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateConfig 配置热更新 (黑名单、端口、保留数量)
func (e *Engine) UpdateConfig(cfg *config.DiscoveryConfig) {
	if cfg == nil {
		return
	}
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
}

func (e *Engine) config() *config.DiscoveryConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// DefaultOptions 由当前配置生成发现参数
func (e *Engine) DefaultOptions() DiscoverOptions {
	cfg := e.config()
	return DiscoverOptions{
		Network:    cfg.Network,
		PortStart:  cfg.PortStart,
		PortEnd:    cfg.PortEnd,
		ExtraPorts: cfg.ExtraPorts(),
	}
}

// Scan 按当前配置执行一轮发现
func (e *Engine) Scan(ctx context.Context) (*Result, error) {
	return e.Discover(ctx, e.DefaultOptions())
}

// Discover 执行一轮发现并并入知识库
func (e *Engine) Discover(ctx context.Context, opts DiscoverOptions) (*Result, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := e.now()
	cfg := e.config()

	network := opts.Network
	if network == "" {
		local, err := DetectLocalNetwork(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("detect local network: %w", err)
		}
		network = local.CIDR
	}

	if clamped, ok, err := utils.ClampNetwork(network); err == nil && ok {
		logger.Warnf("Network %s is wider than /%d, sweeping %s only", network, 32-utils.MaxSweepBits, clamped)
		network = clamped
	}

	ips, err := utils.HostsInCIDR(network)
	if err != nil {
		return nil, fmt.Errorf("expand network %s: %w", network, err)
	}

	if e.board != nil {
		e.board.SetStatus(status.KindNetworkScanner, ActionName, network)
	}
	logger.Infof("Discovery started on %s (%d addresses)", network, len(ips))

	// 一轮开始后总是跑完并对账，取消只阻止下一轮开始
	passCtx := context.WithoutCancel(ctx)

	hosts := e.sweeper.SweepHosts(passCtx, ips)

	portList := port.BuildPortList(opts.PortStart, opts.PortEnd, opts.ExtraPorts)
	table := make(model.HostTable, len(hosts))

	g, gctx := errgroup.WithContext(passCtx)
	g.SetLimit(max(cfg.HostConcurrency, 1))
	for i, h := range hosts {
		g.Go(func() error {
			table[i] = e.inspect(gctx, h, portList)
			return nil
		})
	}
	_ = g.Wait()

	observations := make([]model.Observation, 0, len(table))
	for _, h := range table {
		observations = append(observations, model.Observation{MAC: h.MAC, IP: h.IP, Hostname: h.Hostname, Ports: h.Ports})
	}

	aliveSet, err := e.store.Reconcile(observations, cfg)
	if err != nil {
		return nil, fmt.Errorf("reconcile netkb: %w", err)
	}

	records := e.store.Read()
	res := &Result{
		Network:  network,
		Hosts:    table,
		Alive:    aliveSet,
		Summary:  kb.Summarize(records),
		Duration: e.now().Sub(start),
	}

	if e.board != nil {
		if err := e.board.SetHostCounters(res.Summary.TotalOpenPorts, res.Summary.AliveHosts, res.Summary.KnownHosts); err != nil {
			logger.Warnf("Failed to persist live status: %v", err)
		}
	}

	e.writeArtifacts(res, records, start, cfg.ScanResultsKeep)

	if cfg.DisplayResults {
		if err := reporter.NewConsoleReporter("Discovery " + network).Report(table); err != nil {
			logger.Warnf("Failed to render discovery table: %v", err)
		}
	}

	logger.LogDiscoveryPass(network, len(hosts), res.Summary.TotalOpenPorts, res.Duration)
	return res, nil
}

// inspect 解析主机名与 MAC 并扫描端口
func (e *Engine) inspect(ctx context.Context, h alive.Host, ports []int) model.HostResult {
	hostname := e.resolveName(ctx, h.IP)
	logger.Debugf("Host %s alive via %s", h.IP, h.Method)

	mac, err := e.macs.Resolve(ctx, h.IP)
	if err != nil {
		mac = FallbackIdentity(h.IP, hostname)
		logger.Debugf("MAC not resolved for %s, using %s: %v", h.IP, mac, err)
	}

	return model.HostResult{
		IP:       h.IP,
		Hostname: hostname,
		MAC:      mac,
		Latency:  h.Latency,
		Ports:    e.ports.ScanHost(ctx, h.IP, ports),
	}
}

func (e *Engine) writeArtifacts(res *Result, records []*model.TargetRecord, at time.Time, keep int) {
	if e.resultsDir == "" {
		return
	}
	stamp := at.Format(artifactTimeLayout)
	name := strings.NewReplacer("/", "_", ":", "_").Replace(res.Network)

	scanFile := filepath.Join(e.resultsDir, fmt.Sprintf("scan_%s_%s.csv", name, stamp))
	if err := reporter.SaveCsv(scanFile, res.Hosts); err != nil {
		logger.Warnf("Failed to write scan results: %v", err)
	} else {
		res.ScanFile = scanFile
	}

	resultFile := filepath.Join(e.resultsDir, fmt.Sprintf("result_%s_%s.csv", name, stamp))
	view := model.TargetTable{ActionKeys: e.store.ActionKeys(), Targets: records}
	if err := reporter.SaveCsv(resultFile, view); err != nil {
		logger.Warnf("Failed to write result snapshot: %v", err)
	} else {
		res.ResultFile = resultFile
	}

	if keep <= 0 {
		return
	}
	if removed, err := reporter.PruneOldest(e.resultsDir, keep); err != nil {
		logger.Warnf("Failed to prune scan results: %v", err)
	} else if removed > 0 {
		logger.Debugf("Pruned %d old scan result files", removed)
	}
}

func reverseLookup(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
