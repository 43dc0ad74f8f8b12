package brute

import (
	"context"
	"errors"

	"neohunter/internal/core/model"
)

// Hit 单次尝试的结果
type Hit struct {
	OK     bool
	Extras []string // 协议附加信息 (SMB 共享名、SQL 库名)，每项落一行
}

// Checker 协议适配器接口
type Checker interface {
	// Name 返回协议名称 (e.g. "ssh", "mysql")
	Name() string

	// Extras 字典之外追加的尝试 (e.g. FTP 匿名登录)
	Extras() []model.Credential

	// Check 验证单个凭据
	// 返回:
	// - Hit.OK: true 表示认证成功
	// - error: 认证失败返回 nil 或 ErrAuthFailed；连接不上返回 ErrConnectionFailed
	Check(ctx context.Context, host string, port int, cred model.Credential) (Hit, error)
}

var (
	// ErrAuthFailed 认证失败 (账号密码错误) -> 继续尝试下一个
	ErrAuthFailed = errors.New("auth failed")

	// ErrConnectionFailed 连接失败 (超时/拒绝/重置)
	ErrConnectionFailed = errors.New("connection failed")

	// ErrProtocolError 协议交互错误 (如非预期响应)，已建立连接
	ErrProtocolError = errors.New("protocol error")
)

// connected 判断一次尝试是否与目标建立过连接
func connected(err error) bool {
	return err == nil || !errors.Is(err, ErrConnectionFailed)
}
