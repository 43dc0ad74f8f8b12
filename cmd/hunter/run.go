/*
 * @author: Sun977
 * @date: 2026.02.11
 * @description: run 子命令，启动编排器与控制接口直到收到中断信号
 */

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		manual  bool
		network string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "启动编排器与控制接口",
		Long: `以守护进程方式运行：首次网络发现后持续调度动作，空闲时重新发现。
控制接口默认监听 127.0.0.1:8000，手动模式下编排器通过 POST /api/v1/orchestrator/start 启动。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manual {
				setEnv("MANUAL_MODE", "true")
			}
			setEnv("NETWORK", network)

			app, err := loadApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pterm.Info.Println("NeoHunter running, press Ctrl+C to stop")
			if err := app.Run(ctx); err != nil {
				return err
			}
			pterm.Success.Println("NeoHunter exited")
			return nil
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "手动模式 (不自动启动编排器)")
	cmd.Flags().StringVar(&network, "network", "", "扫描网段 CIDR (默认自动探测)")
	return cmd
}
