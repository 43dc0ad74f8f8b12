/*
 * @author: Sun977
 * @date: 2026.02.11
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"neohunter/internal/app/hunter"
	"neohunter/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hunter",
	Short: "NeoHunter 自主网络侦察与凭据审计",
	Long: `NeoHunter 持续发现本地网段内的主机，维护以 MAC 为主键的知识库，
并按动作依赖树对每台主机执行凭据爆破、数据收集与漏洞扫描。

示例:
  1.启动编排器与控制接口(默认)
	hunter run
  2.手动模式 (通过控制接口启动编排器)
	hunter run --manual
  3.单次网络发现
	hunter scan --network 192.168.1.0/24
  4.对单台主机手动执行动作
	hunter trigger --action SSHBruteforce --ip 192.168.1.20
`,
	SilenceUsage: true,
	// PersistentPreRun: 全局初始化逻辑，命令行参数通过环境变量并入配置
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLI(cmd)
	},
}

// Execute 执行根命令
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] Hunter crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newTriggerCmd())
	rootCmd.AddCommand(newKBCmd())
	rootCmd.AddCommand(newActionsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initCLI 配置 pterm 输出级别，--log-level 通过 NEOHUNTER_LOG_LEVEL 覆盖配置文件
func initCLI(cmd *cobra.Command) {
	flag := cmd.Flags().Lookup("log-level")
	if flag == nil || !flag.Changed {
		return
	}
	setEnv("LOG_LEVEL", logLevel)

	switch logLevel {
	case "debug":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	default:
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}
}

// setEnv 设置 NEOHUNTER_<key>，由配置加载器读取
func setEnv(key, value string) {
	if err := config.NewEnvLoader(config.DefaultEnvPrefix).Set(key, value); err != nil {
		pterm.Warning.Printfln("Failed to set %s: %v", key, err)
	}
}

// loadApp 加载配置并组装应用
func loadApp() (*hunter.App, error) {
	app, err := hunter.NewApp(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create hunter app: %w", err)
	}
	return app, nil
}
