package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "NEOHUNTER"

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
// configPath 可以是目录，也可以是具体的配置文件
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	cl.viper.SetConfigType("yaml")

	if err := NewEnvLoader(cl.envPrefix).Load(); err != nil {
		return nil, err
	}

	// 环境变量: NEOHUNTER_ORCHESTRATOR_SCAN_INTERVAL=60s
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cl.bindEnvVars()
	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadConfigFile 加载配置文件
// 配置文件不存在时使用默认值，其它读取错误直接返回
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath == "" {
		if envPath, ok := NewEnvLoader(cl.envPrefix).Lookup("config_path"); ok {
			cl.configPath = envPath
		} else {
			cl.configPath = "./configs"
		}
	}

	// 指定了具体文件
	if info, err := os.Stat(cl.configPath); err == nil && !info.IsDir() {
		cl.viper.SetConfigFile(cl.configPath)
		return cl.viper.ReadInConfig()
	}

	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")

	// 优先加载环境特定的配置文件
	cl.viper.SetConfigName(fmt.Sprintf("config.%s", cl.getEnvironment()))
	err := cl.viper.ReadInConfig()
	if err == nil {
		return nil
	}

	cl.viper.SetConfigName("config")
	err = cl.viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// getEnvironment 获取运行环境
func (cl *ConfigLoader) getEnvironment() string {
	env, _ := NewEnvLoader(cl.envPrefix).Lookup("env")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development"
	}
	return env
}

// bindEnvVars 绑定常用的环境变量别名
func (cl *ConfigLoader) bindEnvVars() {
	p := cl.envPrefix
	cl.viper.BindEnv("app.manual_mode", p+"_MANUAL_MODE")
	cl.viper.BindEnv("app.debug", p+"_DEBUG")

	cl.viper.BindEnv("server.port", p+"_SERVER_PORT")
	cl.viper.BindEnv("server.enabled", p+"_SERVER_ENABLED")

	cl.viper.BindEnv("discovery.network", p+"_NETWORK")
	cl.viper.BindEnv("discovery.interface", p+"_INTERFACE")

	cl.viper.BindEnv("paths.data_dir", p+"_DATA_DIR")

	cl.viper.BindEnv("log.level", p+"_LOG_LEVEL")
	cl.viper.BindEnv("log.file_path", p+"_LOG_FILE_PATH")
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	v := cl.viper

	// App默认值
	v.SetDefault("app.name", "NeoHunter")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.manual_mode", false)
	v.SetDefault("app.startup_delay", "10s")

	// 控制接口默认值
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	// 日志默认值
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "./data/logs/hunter.log")
	v.SetDefault("log.max_size", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.caller", false)

	// 路径默认值
	v.SetDefault("paths.data_dir", "./data")
	v.SetDefault("paths.actions_file", "./configs/actions.json")
	v.SetDefault("paths.netkb_file", "./data/netkb.csv")
	v.SetDefault("paths.livestatus_file", "./data/livestatus.csv")
	v.SetDefault("paths.scan_results_dir", "./data/output/scan_results")
	v.SetDefault("paths.crackedpwd_dir", "./data/output/crackedpwd")
	v.SetDefault("paths.data_stolen_dir", "./data/output/data_stolen")
	v.SetDefault("paths.vulnerabilities_dir", "./data/output/vulnerabilities")
	v.SetDefault("paths.users_file", "./data/input/dictionary/users.txt")
	v.SetDefault("paths.passwords_file", "./data/input/dictionary/passwords.txt")

	// 编排器默认值
	v.SetDefault("orchestrator.scan_interval", "180s")
	v.SetDefault("orchestrator.scan_vuln_interval", "900s")
	v.SetDefault("orchestrator.failed_retry_delay", "600s")
	v.SetDefault("orchestrator.success_retry_delay", "900s")
	v.SetDefault("orchestrator.retry_success_actions", false)
	v.SetDefault("orchestrator.retry_failed_actions", true)
	v.SetDefault("orchestrator.action_concurrency", 10)

	// 发现默认值
	v.SetDefault("discovery.network", "")
	v.SetDefault("discovery.interface", "")
	v.SetDefault("discovery.portstart", 1)
	v.SetDefault("discovery.portend", 2)
	v.SetDefault("discovery.portlist", DefaultPortList)
	v.SetDefault("discovery.port_timeout", "2s")
	v.SetDefault("discovery.port_concurrency", 200)
	v.SetDefault("discovery.host_concurrency", 64)
	v.SetDefault("discovery.alive_timeout", "1s")
	v.SetDefault("discovery.mac_retries", 5)
	v.SetDefault("discovery.mac_retry_delay", "2s")
	v.SetDefault("discovery.blacklistcheck", true)
	v.SetDefault("discovery.mac_scan_blacklist", []string{})
	v.SetDefault("discovery.ip_scan_blacklist", []string{})
	v.SetDefault("discovery.scan_results_keep", 20)
	v.SetDefault("discovery.displaying_csv", true)
	v.SetDefault("discovery.proxy", "")

	// 爆破默认值
	v.SetDefault("bruteforce.workers", 40)
	v.SetDefault("bruteforce.watchdog", "240s")
	v.SetDefault("bruteforce.check_timeout", "10s")
	v.SetDefault("bruteforce.rdp_client", "xfreerdp")

	// 漏洞扫描默认值
	v.SetDefault("vuln.scan_vuln_running", false)
	v.SetDefault("vuln.nmap_scan_aggressivity", "-T2")
	v.SetDefault("vuln.nmap_path", "nmap")
	v.SetDefault("vuln.timeout", "10m")

	// 窃取默认值
	v.SetDefault("steal.steal_file_names", []string{"ssh.csv", "hack.txt"})
	v.SetDefault("steal.steal_file_extensions", []string{".bjorn", ".hack", ".flag"})
	v.SetDefault("steal.max_depth", 6)
	v.SetDefault("steal.max_rows", 10000)
}

// GetConfigPath 获取配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfig 加载配置
func LoadConfig(configPath ...string) (*Config, error) {
	var path string
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}
	return NewConfigLoader(path, DefaultEnvPrefix).LoadConfig()
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}
	return NewConfigLoader(filepath.Clean(configFile), DefaultEnvPrefix).LoadConfig()
}
