/**
 * Hunter配置管理
 * @author: sun977
 * @date: 2025.10.21
 * @description: 编排器、发现引擎、爆破引擎等组件的配置结构体与默认值
 * @func: Config 结构体 / 目录准备 / 黑名单辅助
 */
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config Hunter配置
type Config struct {
	// 应用配置
	App *AppConfig `yaml:"app" mapstructure:"app"`

	// 控制接口配置
	Server *ServerConfig `yaml:"server" mapstructure:"server"`

	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// 路径配置
	Paths *PathsConfig `yaml:"paths" mapstructure:"paths"`

	// 编排器配置
	Orchestrator *OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`

	// 网络发现配置
	Discovery *DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`

	// 凭据爆破配置
	Bruteforce *BruteforceConfig `yaml:"bruteforce" mapstructure:"bruteforce"`

	// 漏洞扫描配置
	Vuln *VulnConfig `yaml:"vuln" mapstructure:"vuln"`

	// 数据窃取配置
	Steal *StealConfig `yaml:"steal" mapstructure:"steal"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name         string        `yaml:"name" mapstructure:"name"`                   // 应用名称
	Version      string        `yaml:"version" mapstructure:"version"`             // 应用版本
	Environment  string        `yaml:"environment" mapstructure:"environment"`     // 运行环境
	Debug        bool          `yaml:"debug" mapstructure:"debug"`                 // 调试模式
	ManualMode   bool          `yaml:"manual_mode" mapstructure:"manual_mode"`     // 手动模式 (不自动启动编排器)
	StartupDelay time.Duration `yaml:"startup_delay" mapstructure:"startup_delay"` // 启动延迟
}

// ServerConfig 控制接口配置
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`             // 是否启用控制接口
	Host         string        `yaml:"host" mapstructure:"host"`                   // 监听地址
	Port         int           `yaml:"port" mapstructure:"port"`                   // 监听端口
	Mode         string        `yaml:"mode" mapstructure:"mode"`                   // gin 运行模式 (debug/release/test)
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`   // 读取超时时间
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // 写入超时时间
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`   // 空闲超时时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别 (debug/info/warn/error)
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (json/text)
	Output     string `yaml:"output" mapstructure:"output"`           // 日志输出 (stdout/stderr/file)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 最大文件大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// PathsConfig 路径配置
type PathsConfig struct {
	DataDir            string `yaml:"data_dir" mapstructure:"data_dir"`                       // 数据根目录
	ActionsFile        string `yaml:"actions_file" mapstructure:"actions_file"`               // 动作描述文件
	NetKBFile          string `yaml:"netkb_file" mapstructure:"netkb_file"`                   // 知识库文件
	LiveStatusFile     string `yaml:"livestatus_file" mapstructure:"livestatus_file"`         // 实时状态文件
	ScanResultsDir     string `yaml:"scan_results_dir" mapstructure:"scan_results_dir"`       // 扫描结果目录
	CrackedPwdDir      string `yaml:"crackedpwd_dir" mapstructure:"crackedpwd_dir"`           // 凭据结果目录
	DataStolenDir      string `yaml:"data_stolen_dir" mapstructure:"data_stolen_dir"`         // 窃取数据目录
	VulnerabilitiesDir string `yaml:"vulnerabilities_dir" mapstructure:"vulnerabilities_dir"` // 漏洞结果目录
	UsersFile          string `yaml:"users_file" mapstructure:"users_file"`                   // 用户名字典
	PasswordsFile      string `yaml:"passwords_file" mapstructure:"passwords_file"`           // 密码字典
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	ScanInterval        time.Duration `yaml:"scan_interval" mapstructure:"scan_interval"`                 // 空闲等待间隔
	ScanVulnInterval    time.Duration `yaml:"scan_vuln_interval" mapstructure:"scan_vuln_interval"`       // 漏洞扫描间隔
	FailedRetryDelay    time.Duration `yaml:"failed_retry_delay" mapstructure:"failed_retry_delay"`       // 失败重试延迟
	SuccessRetryDelay   time.Duration `yaml:"success_retry_delay" mapstructure:"success_retry_delay"`     // 成功重试延迟
	RetrySuccessActions bool          `yaml:"retry_success_actions" mapstructure:"retry_success_actions"` // 成功后是否重试
	RetryFailedActions  bool          `yaml:"retry_failed_actions" mapstructure:"retry_failed_actions"`   // 失败后是否重试
	ActionConcurrency   int           `yaml:"action_concurrency" mapstructure:"action_concurrency"`       // 全局动作并发上限
}

// DiscoveryConfig 网络发现配置
type DiscoveryConfig struct {
	Network         string        `yaml:"network" mapstructure:"network"`                   // 指定 CIDR (为空则自动探测)
	Interface       string        `yaml:"interface" mapstructure:"interface"`               // 指定网卡 (为空则取默认路由网卡)
	PortStart       int           `yaml:"portstart" mapstructure:"portstart"`               // 端口范围起始 (含)
	PortEnd         int           `yaml:"portend" mapstructure:"portend"`                   // 端口范围结束 (不含)
	PortList        []int         `yaml:"portlist" mapstructure:"portlist"`                 // 额外端口
	PortTimeout     time.Duration `yaml:"port_timeout" mapstructure:"port_timeout"`         // 端口连接超时
	PortConcurrency int           `yaml:"port_concurrency" mapstructure:"port_concurrency"` // 端口探测并发上限
	HostConcurrency int           `yaml:"host_concurrency" mapstructure:"host_concurrency"` // 存活探测并发上限
	AliveTimeout    time.Duration `yaml:"alive_timeout" mapstructure:"alive_timeout"`       // 存活探测超时
	MACRetries      int           `yaml:"mac_retries" mapstructure:"mac_retries"`           // MAC 解析重试次数
	MACRetryDelay   time.Duration `yaml:"mac_retry_delay" mapstructure:"mac_retry_delay"`   // MAC 解析重试间隔
	BlacklistCheck  bool          `yaml:"blacklistcheck" mapstructure:"blacklistcheck"`     // 是否启用黑名单
	MACBlacklist    []string      `yaml:"mac_scan_blacklist" mapstructure:"mac_scan_blacklist"`
	IPBlacklist     []string      `yaml:"ip_scan_blacklist" mapstructure:"ip_scan_blacklist"`
	ScanResultsKeep int           `yaml:"scan_results_keep" mapstructure:"scan_results_keep"` // 保留的扫描结果文件数
	DisplayResults  bool          `yaml:"displaying_csv" mapstructure:"displaying_csv"`       // 是否在控制台输出扫描结果
	Proxy           string        `yaml:"proxy" mapstructure:"proxy"`                         // socks5 代理 (为空则直连)
}

// BruteforceConfig 凭据爆破配置
type BruteforceConfig struct {
	Workers      int                      `yaml:"workers" mapstructure:"workers"`             // 单目标工作协程数
	Watchdog     time.Duration            `yaml:"watchdog" mapstructure:"watchdog"`           // 无连接看门狗
	CheckTimeout time.Duration            `yaml:"check_timeout" mapstructure:"check_timeout"` // 单次尝试超时
	TimeWait     map[string]time.Duration `yaml:"timewait" mapstructure:"timewait"`           // 协议级尝试间隔
	RDPClient    string                   `yaml:"rdp_client" mapstructure:"rdp_client"`       // xfreerdp 路径
}

// VulnConfig 漏洞扫描配置
type VulnConfig struct {
	Enabled      bool          `yaml:"scan_vuln_running" mapstructure:"scan_vuln_running"`           // 是否启用漏洞扫描
	Aggressivity string        `yaml:"nmap_scan_aggressivity" mapstructure:"nmap_scan_aggressivity"` // nmap 时序参数
	NmapPath     string        `yaml:"nmap_path" mapstructure:"nmap_path"`                           // nmap 路径
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`                               // 单目标扫描超时
}

// StealConfig 数据窃取配置
type StealConfig struct {
	FileNames      []string `yaml:"steal_file_names" mapstructure:"steal_file_names"`           // 文件名关键字
	FileExtensions []string `yaml:"steal_file_extensions" mapstructure:"steal_file_extensions"` // 文件扩展名
	MaxDepth       int      `yaml:"max_depth" mapstructure:"max_depth"`                         // 目录遍历最大深度
	MaxRows        int      `yaml:"max_rows" mapstructure:"max_rows"`                           // 单表最大导出行数
}

// DefaultPortList 默认额外端口
var DefaultPortList = []int{20, 21, 22, 23, 25, 53, 69, 80, 110, 111, 135, 137, 139, 143, 161, 162, 389, 443, 445, 512, 513, 514, 587, 636, 993, 995, 1080, 1433, 1521, 2049, 3306, 3389, 5000, 5001, 5432, 5900, 8080, 8443, 9090, 10000}

// EnsureDirectories 创建运行所需目录
func (c *Config) EnsureDirectories() error {
	if c.Paths == nil {
		return fmt.Errorf("paths config is nil")
	}
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.ScanResultsDir,
		c.Paths.CrackedPwdDir,
		c.Paths.DataStolenDir,
		c.Paths.VulnerabilitiesDir,
		filepath.Dir(c.Paths.NetKBFile),
		filepath.Dir(c.Paths.ActionsFile),
		filepath.Dir(c.Paths.UsersFile),
	}
	if c.Log != nil && c.Log.Output == "file" && c.Log.FilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Log.FilePath))
	}
	for _, dir := range dirs {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// ExtraPorts 返回去重后的额外端口
func (d *DiscoveryConfig) ExtraPorts() []int {
	seen := make(map[int]struct{}, len(d.PortList))
	ports := make([]int, 0, len(d.PortList))
	for _, p := range d.PortList {
		if p <= 0 || p > 65535 {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}
	return ports
}

// IsBlacklisted 判断 MAC / IP 是否命中黑名单
func (d *DiscoveryConfig) IsBlacklisted(mac, ip string) bool {
	if !d.BlacklistCheck {
		return false
	}
	for _, m := range d.MACBlacklist {
		if strings.EqualFold(m, mac) {
			return true
		}
	}
	for _, i := range d.IPBlacklist {
		if i == ip {
			return true
		}
	}
	return false
}

// AddMACToBlacklist 追加 MAC 黑名单 (本机 MAC)
func (d *DiscoveryConfig) AddMACToBlacklist(mac string) bool {
	mac = strings.ToLower(strings.TrimSpace(mac))
	if mac == "" {
		return false
	}
	for _, m := range d.MACBlacklist {
		if strings.EqualFold(m, mac) {
			return false
		}
	}
	d.MACBlacklist = append(d.MACBlacklist, mac)
	return true
}

// TimeWaitFor 返回协议对应的尝试间隔
func (b *BruteforceConfig) TimeWaitFor(protocol string) time.Duration {
	if b == nil || b.TimeWait == nil {
		return 0
	}
	return b.TimeWait[strings.ToLower(protocol)]
}

// validateConfig 验证配置
func validateConfig(cfg *Config) error {
	if cfg.Discovery == nil || cfg.Orchestrator == nil || cfg.Bruteforce == nil || cfg.Paths == nil {
		return fmt.Errorf("incomplete configuration")
	}
	d := cfg.Discovery
	if d.PortStart < 0 || d.PortEnd < d.PortStart || d.PortEnd > 65536 {
		return fmt.Errorf("invalid port range [%d, %d)", d.PortStart, d.PortEnd)
	}
	if d.PortConcurrency <= 0 {
		return fmt.Errorf("port_concurrency must be positive")
	}
	if cfg.Orchestrator.ActionConcurrency <= 0 {
		return fmt.Errorf("action_concurrency must be positive")
	}
	if cfg.Bruteforce.Workers <= 0 {
		return fmt.Errorf("bruteforce workers must be positive")
	}
	if cfg.Server != nil && cfg.Server.Enabled && (cfg.Server.Port <= 0 || cfg.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Paths.NetKBFile == "" || cfg.Paths.ActionsFile == "" {
		return fmt.Errorf("netkb_file and actions_file are required")
	}
	return nil
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// WriteYAML 将当前配置写出为 YAML (首次运行生成配置文件)
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
