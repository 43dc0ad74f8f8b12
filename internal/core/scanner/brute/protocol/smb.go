package protocol

import (
	"context"
	"strings"

	"github.com/stacktitan/smb/smb"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
)

// IgnoredShares 不记录的系统共享
var IgnoredShares = map[string]bool{
	"print$": true, "ADMIN$": true, "IPC$": true,
	"C$": true, "D$": true, "E$": true, "F$": true,
}

// DefaultShareCandidates 认证成功后逐个尝试挂载的共享名
var DefaultShareCandidates = []string{"public", "share", "shared", "Users", "data", "backup", "homes", "media", "files"}

// SMBChecker SMB 口令验证
type SMBChecker struct {
	Shares []string
}

func NewSMBChecker() *SMBChecker {
	return &SMBChecker{Shares: DefaultShareCandidates}
}

func (c *SMBChecker) Name() string {
	return "smb"
}

func (c *SMBChecker) Extras() []model.Credential {
	return nil
}

func (c *SMBChecker) Check(ctx context.Context, host string, port int, cred model.Credential) (brute.Hit, error) {
	options := smb.Options{
		Host:     host,
		Port:     port,
		User:     cred.User,
		Password: cred.Password,
	}

	type result struct {
		hit brute.Hit
		err error
	}
	resultChan := make(chan result, 1)

	// stacktitan/smb 的 NewSession 同步阻塞，不支持 ctx
	go func() {
		session, err := smb.NewSession(options, false)
		if err != nil {
			resultChan <- result{err: err}
			return
		}
		defer session.Close()

		if !session.IsAuthenticated {
			resultChan <- result{err: brute.ErrAuthFailed}
			return
		}
		resultChan <- result{hit: brute.Hit{OK: true, Extras: c.accessibleShares(session)}}
	}()

	select {
	case <-ctx.Done():
		return brute.Hit{}, brute.ErrConnectionFailed
	case res := <-resultChan:
		if res.hit.OK {
			return res.hit, nil
		}
		return brute.Hit{}, c.handleError(res.err)
	}
}

func (c *SMBChecker) accessibleShares(session *smb.Session) []string {
	var shares []string
	for _, name := range c.Shares {
		if IgnoredShares[name] {
			continue
		}
		if err := session.TreeConnect(name); err != nil {
			continue
		}
		session.TreeDisconnect(name)
		shares = append(shares, name)
	}
	return shares
}

// handleError 解析 SMB 错误
func (c *SMBChecker) handleError(err error) error {
	if err == nil || err == brute.ErrAuthFailed {
		return brute.ErrAuthFailed
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "STATUS_LOGON_FAILURE") ||
		strings.Contains(errMsg, "STATUS_WRONG_PASSWORD") ||
		strings.Contains(errMsg, "login failed") {
		return brute.ErrAuthFailed
	}

	// 默认视为连接失败，避免误报
	return brute.ErrConnectionFailed
}
