package model

import (
	"strings"
	"time"
)

// HostResult 单台存活主机的发现结果
type HostResult struct {
	IP       string        `json:"ip"`
	Hostname string        `json:"hostname,omitempty"`
	MAC      string        `json:"mac"`
	Latency  time.Duration `json:"latency,omitempty"`
	Ports    []int         `json:"ports,omitempty"`
}

// HostTable 一轮发现的主机列表，实现 TabularData 接口
// IP        | Hostname | MAC Address       | Ports
// 10.0.0.5  | nas      | aa:bb:cc:dd:ee:ff | 22;80
type HostTable []HostResult

func (t HostTable) Headers() []string {
	return []string{"IP", "Hostname", "MAC Address", "Ports"}
}

func (t HostTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, h := range t {
		rows = append(rows, []string{h.IP, h.Hostname, h.MAC, JoinPorts(h.Ports)})
	}
	return rows
}

// TargetTable 知识库视图，实现 TabularData 接口
type TargetTable struct {
	ActionKeys []string
	Targets    []*TargetRecord
}

func (t TargetTable) Headers() []string {
	return append([]string{"MAC Address", "IPs", "Hostnames", "Alive", "Ports"}, t.ActionKeys...)
}

func (t TargetTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Targets))
	for _, r := range t.Targets {
		alive := "0"
		if r.Alive {
			alive = "1"
		}
		row := []string{r.MAC, joinCell(r.IPs), joinCell(r.Hostnames), alive, JoinPorts(r.Ports)}
		for _, key := range t.ActionKeys {
			row = append(row, r.Action(key).String())
		}
		rows = append(rows, row)
	}
	return rows
}

func joinCell(values []string) string {
	return strings.Join(values, ";")
}
