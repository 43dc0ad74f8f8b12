package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"neohunter/internal/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Long:  "显示 NeoHunter 的版本信息，包括版本号、构建时间、Git 提交和 Go 版本。",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("NeoHunter %s\n", version.GetFullVersion())
			fmt.Printf("API Version: %s\n", version.APIVersion)
			fmt.Printf("Build Time: %s\n", version.BuildTime)
			fmt.Printf("Git Commit: %s\n", version.GitCommit)
			fmt.Printf("Go Version: %s\n", version.GoVersion)
		},
	}
}
