/*
 * @author: Sun977
 * @date: 2026.02.11
 * @description: actions 子命令，列出已加载的动作及其依赖关系
 */

package main

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"neohunter/internal/core/registry"
)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "列出已加载的动作",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			set := app.Actions()

			data := pterm.TableData{{"Class", "Module", "Port", "Parent", "Status", "Kind"}}
			add := func(kind string, actions ...*registry.Action) {
				for _, a := range actions {
					d := a.Descriptor
					data = append(data, []string{d.Class, d.Module, strconv.Itoa(d.Port), d.Parent, d.Status, kind})
				}
			}
			add("root", set.Roots...)
			add("child", set.Children...)
			add("standalone", set.Standalone...)
			if set.Vuln != nil {
				add("vuln", set.Vuln)
			}

			if len(data) == 1 {
				pterm.Warning.Println("No actions loaded.")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader(true).WithBoxed(false).WithData(data).Render()
		},
	}
}
