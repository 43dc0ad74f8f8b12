/*
 * @author: Sun977
 * @date: 2026.02.11
 * @description: kb 子命令，查看知识库
 */

package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"neohunter/internal/core/kb"
	"neohunter/internal/core/model"
	"neohunter/internal/core/reporter"
)

func newKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "知识库操作",
	}
	cmd.AddCommand(newKBShowCmd())
	return cmd
}

func newKBShowCmd() *cobra.Command {
	var (
		aliveOnly bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "以表格输出知识库",
		Example: `  hunter kb show
  hunter kb show --alive --output kb.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			store := app.Store()

			records := store.Read()
			if aliveOnly {
				filtered := records[:0]
				for _, r := range records {
					if r.Alive && !r.IsStandalone() {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}
			table := model.TargetTable{ActionKeys: store.ActionKeys(), Targets: records}

			reporters := []reporter.Reporter{reporter.NewConsoleReporter("Knowledge base " + store.Path())}
			if output != "" {
				reporters = append(reporters, reporter.NewCsvReporter(output))
			}
			if err := reporter.NewMultiReporter(reporters...).Report(table); err != nil {
				return err
			}

			sum := kb.Summarize(records)
			pterm.Info.Printfln("Known hosts: %d, alive: %d, open ports: %d", sum.KnownHosts, sum.AliveHosts, sum.TotalOpenPorts)
			return nil
		},
	}

	cmd.Flags().BoolVar(&aliveOnly, "alive", false, "只显示存活主机")
	cmd.Flags().StringVarP(&output, "output", "o", "", "同时导出为 CSV 文件")
	return cmd
}
