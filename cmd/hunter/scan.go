/*
 * @author: Sun977
 * @date: 2026.02.11
 * @description: scan 子命令，执行单轮网络发现并把结果并入知识库
 */

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"neohunter/internal/core/reporter"
)

func newScanCmd() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "执行单轮网络发现",
		Long: `对本机网段 (或 --network 指定的 CIDR) 做一次存活探测与端口扫描，
结果与知识库对账后输出主机表。`,
		Example: `  hunter scan
  hunter scan --network 192.168.1.0/24`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setEnv("NETWORK", network)

			app, err := loadApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			spinner, _ := pterm.DefaultSpinner.Start("Scanning network...")
			res, err := app.Discovery().Scan(ctx)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success("Network scan completed")

			if err := reporter.NewConsoleReporter("Hosts on " + res.Network).Report(res.Hosts); err != nil {
				return err
			}
			pterm.Info.Printfln("Alive hosts: %d, known hosts: %d, open ports: %d, took %s",
				res.Summary.AliveHosts, res.Summary.KnownHosts, res.Summary.TotalOpenPorts, res.Duration)
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "扫描网段 CIDR (默认自动探测)")
	return cmd
}
