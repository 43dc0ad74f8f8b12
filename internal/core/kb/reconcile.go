package kb

import (
	"neohunter/internal/core/model"
	"neohunter/internal/pkg/logger"
)

// Blacklist 黑名单判定 (config.DiscoveryConfig 实现)
type Blacklist interface {
	IsBlacklisted(mac, ip string) bool
}

// Reconcile 把一轮发现结果并入知识库，返回对账后仍在库中且存活的 MAC 集合
//
// 规则:
//   - 空 MAC、STANDALONE、全零 MAC、黑名单命中的观测被忽略
//   - 同一轮内 IP 被另一个 MAC 认领时，先前持有该 IP 的 MAC 标记为离线
//   - 本轮未出现的 MAC 标记为离线，端口与主机名保留
//   - 合并后 IP 数不为 1 的记录整体丢弃
func (s *Store) Reconcile(observations []model.Observation, bl Blacklist) (map[string]struct{}, error) {
	alive := make(map[string]struct{})

	err := s.Update(func(records []*model.TargetRecord) []*model.TargetRecord {
		index := make(map[string]*model.TargetRecord, len(records))
		for _, r := range records {
			index[r.MAC] = r
		}

		seen := make(map[string]struct{})
		ipOwner := make(map[string]string)
		for _, obs := range observations {
			if skipObservation(obs, bl) {
				continue
			}
			seen[obs.MAC] = struct{}{}

			if owner, ok := ipOwner[obs.IP]; ok && owner != obs.MAC {
				if prev, ok := index[owner]; ok {
					prev.Alive = false
				}
			}
			ipOwner[obs.IP] = obs.MAC

			r, ok := index[obs.MAC]
			if !ok {
				r = model.NewTargetRecord(obs.MAC)
				index[obs.MAC] = r
				records = append(records, r)
			}
			r.AddIP(obs.IP)
			r.AddHostname(obs.Hostname)
			r.AddPorts(obs.Ports...)
			r.Alive = true
		}

		kept := records[:0]
		for _, r := range records {
			if _, ok := seen[r.MAC]; !ok {
				r.Alive = false
			}
			if len(r.IPs) != 1 {
				logger.Warnf("Dropping netkb entry %s with %d IPs", r.MAC, len(r.IPs))
				continue
			}
			if r.Alive {
				alive[r.MAC] = struct{}{}
			}
			kept = append(kept, r)
		}
		return kept
	})
	if err != nil {
		return nil, err
	}
	return alive, nil
}

func skipObservation(obs model.Observation, bl Blacklist) bool {
	switch {
	case obs.MAC == "", obs.MAC == model.StandaloneMAC, obs.MAC == model.ZeroMAC:
		return true
	case obs.IP == model.StandaloneMAC, obs.Hostname == model.StandaloneMAC:
		return true
	case bl != nil && bl.IsBlacklisted(obs.MAC, obs.IP):
		return true
	}
	return false
}

// Summary 知识库计数
type Summary struct {
	TotalOpenPorts int `json:"total_open_ports"`
	AliveHosts     int `json:"alive_hosts"`
	KnownHosts     int `json:"known_hosts"`
}

// Summarize 统计存活主机端口数、存活数、已知主机数 (不含 STANDALONE)
func Summarize(records []*model.TargetRecord) Summary {
	var sum Summary
	for _, r := range records {
		if r.IsStandalone() {
			continue
		}
		sum.KnownHosts++
		if r.Alive {
			sum.AliveHosts++
			sum.TotalOpenPorts += len(r.Ports)
		}
	}
	return sum
}
