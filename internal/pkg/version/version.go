// 版本信息
// BuildTime / GitCommit / GoVersion 通过 -ldflags "-X neohunter/internal/pkg/version.GitCommit=..." 注入

package version

import "runtime"

var (
	Version    = "1.0.0" // 版本号 -- 发布时候更新版本号
	APIVersion = "v1"
	BuildTime  string
	GitCommit  string
	GoVersion  = runtime.Version()
)

func GetVersion() string {
	return Version
}

// GetFullVersion 版本号 + 提交
func GetFullVersion() string {
	if GitCommit == "" {
		return Version
	}
	return Version + "+" + GitCommit
}
