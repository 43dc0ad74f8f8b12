package actions

import (
	"context"
	"time"

	"neohunter/internal/core/model"
	"neohunter/internal/core/scanner/vuln"
	"neohunter/internal/pkg/logger"
)

// VulnScanAction nmap 漏洞扫描动作，扫描目标的全部已知端口
type VulnScanAction struct {
	deps Deps
}

func NewVulnScanAction(deps Deps) *VulnScanAction {
	return &VulnScanAction{deps: deps}
}

func (a *VulnScanAction) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	start := time.Now()
	report, err := a.deps.Vuln.Scan(ctx, vuln.Target{
		IP:       ip,
		Hostname: record.PrimaryHostname(),
		MAC:      record.MAC,
		Ports:    record.Ports,
	})
	if err != nil {
		logger.LogActionOperation(key, ip, "failed", time.Since(start), map[string]interface{}{
			"error": err.Error(),
		})
		return model.OutcomeFailed
	}

	a.refreshCount()
	logger.LogActionOperation(key, ip, "success", time.Since(start), map[string]interface{}{
		"vulnerabilities": len(report.Vulnerabilities),
	})
	return model.OutcomeSuccess
}

// refreshCount 汇总存活主机的不同漏洞条目数写入状态板
func (a *VulnScanAction) refreshCount() {
	if a.deps.Store == nil || a.deps.Board == nil {
		return
	}
	alive := make(map[string]struct{})
	for _, r := range a.deps.Store.Read() {
		if r.Alive && !r.IsStandalone() {
			alive[r.MAC] = struct{}{}
		}
	}
	n, err := a.deps.Vuln.Summary().CountDistinct(alive)
	if err != nil {
		logger.Warnf("Failed to count vulnerabilities: %v", err)
		return
	}
	if err := a.deps.Board.SetVulnerabilities(n); err != nil {
		logger.Warnf("Failed to persist live status: %v", err)
	}
}
