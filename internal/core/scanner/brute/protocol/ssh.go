package protocol

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"neohunter/internal/core/lib/network/dialer"
	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

// SSHChecker 实现 SSH 口令验证
type SSHChecker struct{}

// NewSSHChecker 创建 SSH 验证器
func NewSSHChecker() *SSHChecker {
	return &SSHChecker{}
}

// Name 返回协议名称
func (c *SSHChecker) Name() string {
	return "ssh"
}

// Extras SSH 无额外尝试
func (c *SSHChecker) Extras() []model.Credential {
	return nil
}

// Check 验证 SSH 凭据
func (c *SSHChecker) Check(ctx context.Context, host string, port int, cred model.Credential) (brute.Hit, error) {
	client, err := DialSSH(ctx, host, port, cred)
	if err != nil {
		return brute.Hit{}, c.handleError(err)
	}
	client.Close()
	return brute.Hit{OK: true}, nil
}

// DialSSH 建立已认证的 SSH 客户端 (窃取动作复用)
// TCP 连接走全局拨号器，握手受 ctx 截止时间约束
func DialSSH(ctx context.Context, host string, port int, cred model.Credential) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            cred.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	conn, err := dialer.Get().DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	conn.SetDeadline(deadline)

	cConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	// 握手完成后取消截止时间，后续命令由调用方控制
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(cConn, chans, reqs), nil
}

// handleError 将底层错误转换为标准错误
func (c *SSHChecker) handleError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	if strings.Contains(msg, "unable to authenticate") {
		return brute.ErrAuthFailed
	}

	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "target machine actively refused") {
		return brute.ErrConnectionFailed
	}

	return brute.ErrProtocolError
}
