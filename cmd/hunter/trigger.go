/*
 * @author: Sun977
 * @date: 2026.02.11
 * @description: trigger 子命令，对单台主机手动执行一个动作 (跳过退避)
 */

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newTriggerCmd() *cobra.Command {
	var action, ip string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "对指定主机手动执行动作",
		Long: `按类名执行一个网络动作，结果照常写回知识库。
目标必须已在知识库中 (先运行 hunter scan)。`,
		Example: `  hunter trigger --action SSHBruteforce --ip 192.168.1.20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := app.Controller().Trigger(ctx, action, ip)
			if err != nil {
				return err
			}

			printer := pterm.Success
			if res.Outcome != "success" {
				printer = pterm.Warning
			}
			printer.Printfln("%s on %s: %s (%s)", res.Action, res.IP, res.Outcome, res.At.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "", "动作类名 (例如 SSHBruteforce)")
	cmd.Flags().StringVarP(&ip, "ip", "i", "", "目标 IP")
	cmd.MarkFlagRequired("action")
	cmd.MarkFlagRequired("ip")
	return cmd
}
