package protocol

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"regexp"
	"strconv"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

// DefaultRDPBinary 默认的 RDP 客户端
const DefaultRDPBinary = "xfreerdp"

// CommandRunner 执行外部命令并返回合并输出
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// 连不上目标时 xfreerdp 输出的错误，其余非零退出视为认证失败
var reRDPUnreachable = regexp.MustCompile(`(?i)(ERRCONNECT_CONNECT_FAILED|ERRCONNECT_CONNECT_TRANSPORT_FAILED|ERRCONNECT_DNS_NAME_NOT_FOUND|ERRCONNECT_CONNECT_CANCELLED|connection refused|no route to host|unable to connect)`)

// RDPChecker 通过 xfreerdp 的 +auth-only 模式验证口令，退出码 0 为成功
type RDPChecker struct {
	binary string
	run    CommandRunner
}

// RDPOption 选项
type RDPOption func(*RDPChecker)

// WithRDPRunner 替换命令执行器
func WithRDPRunner(r CommandRunner) RDPOption {
	return func(c *RDPChecker) { c.run = r }
}

// WithRDPBinary 指定客户端路径
func WithRDPBinary(path string) RDPOption {
	return func(c *RDPChecker) {
		if path != "" {
			c.binary = path
		}
	}
}

func NewRDPChecker(opts ...RDPOption) *RDPChecker {
	c := &RDPChecker{binary: DefaultRDPBinary, run: execRunner}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RDPChecker) Name() string {
	return "rdp"
}

func (c *RDPChecker) Extras() []model.Credential {
	return nil
}

func (c *RDPChecker) Check(ctx context.Context, host string, port int, cred model.Credential) (brute.Hit, error) {
	out, err := c.run(ctx, c.binary,
		"/v:"+net.JoinHostPort(host, strconv.Itoa(port)),
		"/u:"+cred.User,
		"/p:"+cred.Password,
		"/cert:ignore",
		"+auth-only",
	)
	switch {
	case err == nil:
		return brute.Hit{OK: true}, nil
	case errors.Is(err, exec.ErrNotFound), ctx.Err() != nil:
		return brute.Hit{}, brute.ErrConnectionFailed
	case reRDPUnreachable.Match(out):
		return brute.Hit{}, brute.ErrConnectionFailed
	}
	return brute.Hit{}, brute.ErrAuthFailed
}
