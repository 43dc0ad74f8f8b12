package actions

import (
	"context"
	"time"

	"neohunter/internal/config"
	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/brute"
	"neohunter/internal/core/scanner/brute/protocol"
	"neohunter/internal/pkg/logger"
)

type bruteProtocol struct {
	name        string
	extraColumn string
	newChecker  func(cfg *config.Config) brute.Checker
}

// 动作类名 -> 协议
var bruteProtocols = map[string]bruteProtocol{
	"SSHBruteforce":    {name: "ssh", newChecker: func(*config.Config) brute.Checker { return protocol.NewSSHChecker() }},
	"FTPBruteforce":    {name: "ftp", newChecker: func(*config.Config) brute.Checker { return protocol.NewFTPChecker() }},
	"TelnetBruteforce": {name: "telnet", newChecker: func(*config.Config) brute.Checker { return protocol.NewTelnetChecker() }},
	"SMBBruteforce":    {name: "smb", extraColumn: "Share", newChecker: func(*config.Config) brute.Checker { return protocol.NewSMBChecker() }},
	"SQLBruteforce":    {name: "sql", extraColumn: "Database", newChecker: func(*config.Config) brute.Checker { return protocol.NewMySQLChecker() }},
	"RDPBruteforce":    {name: "rdp", newChecker: newRDPChecker},
}

func newRDPChecker(cfg *config.Config) brute.Checker {
	var client string
	if cfg.Bruteforce != nil {
		client = cfg.Bruteforce.RDPClient
	}
	return protocol.NewRDPChecker(protocol.WithRDPBinary(client))
}

// BruteforceAction 通用爆破动作: 字典 + 引擎 + 协议 Checker
type BruteforceAction struct {
	proto   string
	checker brute.Checker
	store   *brute.CredentialStore
	deps    Deps
}

func NewBruteforceAction(proto string, checker brute.Checker, store *brute.CredentialStore, deps Deps) *BruteforceAction {
	return &BruteforceAction{proto: proto, checker: checker, store: store, deps: deps}
}

// Execute 对目标执行字典爆破，至少命中一条凭据为成功
func (a *BruteforceAction) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	cfg := a.deps.config()

	var usersFile, passwordsFile string
	if cfg.Paths != nil {
		usersFile, passwordsFile = cfg.Paths.UsersFile, cfg.Paths.PasswordsFile
	}
	dict, err := brute.LoadDict(usersFile, passwordsFile)
	if err != nil {
		logger.Errorf("%s: %v", key, err)
		return model.OutcomeFailed
	}

	engineCfg := brute.EngineConfig{}
	if b := cfg.Bruteforce; b != nil {
		engineCfg = brute.EngineConfig{
			Workers:      b.Workers,
			Watchdog:     b.Watchdog,
			CheckTimeout: b.CheckTimeout,
			TimeWait:     b.TimeWaitFor(a.proto),
		}
	}

	target := brute.Target{
		MAC:      record.MAC,
		IP:       ip,
		Hostname: record.PrimaryHostname(),
		Port:     port,
	}

	start := time.Now()
	ok, records := brute.NewEngine(engineCfg, a.store).Run(ctx, target, dict.Generate(), a.checker)

	outcome := model.OutcomeFailed
	if ok {
		outcome = model.OutcomeSuccess
	}
	logger.LogActionOperation(key, ip, outcome.String(), time.Since(start), map[string]interface{}{
		"port":        port,
		"credentials": len(records),
	})
	return outcome
}
