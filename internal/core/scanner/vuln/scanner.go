/**
 * @author: sun977
 * @date: 2026.10.19
 * @description: nmap vulners 漏洞扫描封装
 */
package vuln

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"neohunter/internal/config"
	"neohunter/internal/pkg/logger"
)

// SummaryFileName 漏洞摘要文件名
const SummaryFileName = "vulnerability_summary.csv"

var ErrNoPorts = errors.New("target has no open ports")

// CommandRunner 执行外部命令并返回合并输出
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Target 扫描目标
type Target struct {
	IP       string
	Hostname string
	MAC      string
	Ports    []int
}

// Report 单次扫描结果
type Report struct {
	Target          Target
	Vulnerabilities []string
	RawFile         string
	Duration        time.Duration
}

// Scanner nmap 漏洞扫描器
type Scanner struct {
	mu      sync.RWMutex
	cfg     config.VulnConfig
	dir     string
	summary *Summary
	run     CommandRunner
}

// Option 扫描器选项
type Option func(*Scanner)

// WithRunner 替换命令执行器
func WithRunner(r CommandRunner) Option {
	return func(s *Scanner) { s.run = r }
}

// NewScanner 创建扫描器，结果写入 dir
func NewScanner(cfg *config.VulnConfig, dir string, opts ...Option) *Scanner {
	s := &Scanner{
		dir:     dir,
		summary: NewSummary(filepath.Join(dir, SummaryFileName)),
		run:     execRunner,
	}
	s.UpdateConfig(cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateConfig 热更新配置
func (s *Scanner) UpdateConfig(cfg *config.VulnConfig) {
	if cfg == nil {
		cfg = &config.VulnConfig{}
	}
	c := *cfg
	if c.NmapPath == "" {
		c.NmapPath = "nmap"
	}
	if c.Aggressivity == "" {
		c.Aggressivity = "-T2"
	}
	s.mu.Lock()
	s.cfg = c
	s.mu.Unlock()
}

// Summary 漏洞摘要存储
func (s *Scanner) Summary() *Summary {
	return s.summary
}

// Scan 对单个目标执行 nmap vulners 扫描
func (s *Scanner) Scan(ctx context.Context, t Target) (*Report, error) {
	if len(t.Ports) == 0 {
		return nil, ErrNoPorts
	}

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	ports := joinPorts(t.Ports)
	args := append(strings.Fields(cfg.Aggressivity), "-sV", "--script", "vulners.nse", "-p", ports, t.IP)

	start := time.Now()
	logger.Infof("Vulnerability scan started: %s %s", cfg.NmapPath, strings.Join(args, " "))
	out, err := s.run(ctx, cfg.NmapPath, args...)
	if err != nil {
		return nil, fmt.Errorf("nmap %s: %w", t.IP, err)
	}

	report := &Report{
		Target:          t,
		Vulnerabilities: ParseVulnerabilities(string(out)),
		Duration:        time.Since(start),
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, err
	}
	report.RawFile = filepath.Join(s.dir, RawFileName(t.MAC, t.IP))
	if err := os.WriteFile(report.RawFile, out, 0644); err != nil {
		return nil, fmt.Errorf("save raw output: %w", err)
	}

	if err := s.summary.Upsert(SummaryRow{
		IP:              t.IP,
		Hostname:        t.Hostname,
		MAC:             t.MAC,
		Ports:           ports,
		Vulnerabilities: report.Vulnerabilities,
	}); err != nil {
		return nil, fmt.Errorf("update summary: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"ip":              t.IP,
		"mac":             t.MAC,
		"vulnerabilities": len(report.Vulnerabilities),
		"duration_ms":     report.Duration.Milliseconds(),
	}).Info("Vulnerability scan completed")
	return report, nil
}

// RawFileName 原始输出文件名
func RawFileName(mac, ip string) string {
	return fmt.Sprintf("%s_%s_vuln_scan.txt", strings.ReplaceAll(mac, ":", ""), ip)
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
