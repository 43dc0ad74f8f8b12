package protocol

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"neohunter/internal/core/lib/network/dialer"
	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

// AnonymousFTP 匿名登录凭据
var AnonymousFTP = model.Credential{User: "anonymous", Password: ""}

// FTPChecker FTP 口令验证
type FTPChecker struct{}

func NewFTPChecker() *FTPChecker {
	return &FTPChecker{}
}

func (c *FTPChecker) Name() string {
	return "ftp"
}

// Extras 字典之外额外尝试匿名登录
func (c *FTPChecker) Extras() []model.Credential {
	return []model.Credential{AnonymousFTP}
}

func (c *FTPChecker) Check(ctx context.Context, host string, port int, cred model.Credential) (brute.Hit, error) {
	conn, err := DialFTP(ctx, host, port)
	if err != nil {
		return brute.Hit{}, brute.ErrConnectionFailed
	}
	defer conn.Quit()

	if err := conn.Login(cred.User, cred.Password); err != nil {
		return brute.Hit{}, c.handleError(err)
	}
	conn.Logout()

	return brute.Hit{OK: true}, nil
}

// DialFTP 建立 FTP 控制连接 (窃取动作复用)
func DialFTP(ctx context.Context, host string, port int) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	return ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(5*time.Second),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return dialer.Get().DialContext(ctx, network, address)
		}),
	)
}

// handleError 解析 FTP 错误
func (c *FTPChecker) handleError(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	// 530 Login incorrect.
	if strings.HasPrefix(errMsg, "530") {
		return brute.ErrAuthFailed
	}

	// 421 Too many connections
	if strings.HasPrefix(errMsg, "421") || strings.HasPrefix(errMsg, "EOF") {
		return brute.ErrConnectionFailed
	}

	return brute.ErrProtocolError
}
