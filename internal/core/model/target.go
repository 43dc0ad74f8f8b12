package model

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"neohunter/internal/pkg/utils"
)

const (
	// StandaloneMAC 独立动作使用的伪目标
	StandaloneMAC = "STANDALONE"
	// ZeroMAC 无效 MAC
	ZeroMAC = "00:00:00:00:00:00"
)

// TargetRecord 知识库中的一台主机，以 MAC 为主键
type TargetRecord struct {
	MAC       string
	IPs       []string
	Hostnames []string
	Alive     bool
	Ports     []int
	Actions   map[string]ActionRecord
}

// NewTargetRecord 创建空记录
func NewTargetRecord(mac string) *TargetRecord {
	return &TargetRecord{
		MAC:     mac,
		Actions: make(map[string]ActionRecord),
	}
}

// NewStandaloneRecord 创建独立动作伪目标
func NewStandaloneRecord() *TargetRecord {
	r := NewTargetRecord(StandaloneMAC)
	r.IPs = []string{StandaloneMAC}
	r.Ports = []int{0}
	return r
}

// IsStandalone 是否为独立动作伪目标
func (t *TargetRecord) IsStandalone() bool {
	return t.MAC == StandaloneMAC
}

// PrimaryIP 返回第一个 IP
func (t *TargetRecord) PrimaryIP() string {
	if len(t.IPs) == 0 {
		return ""
	}
	return t.IPs[0]
}

// PrimaryHostname 返回第一个主机名
func (t *TargetRecord) PrimaryHostname() string {
	if len(t.Hostnames) == 0 {
		return ""
	}
	return t.Hostnames[0]
}

// HasPort 端口是否在已观测集合中
func (t *TargetRecord) HasPort(port int) bool {
	return slices.Contains(t.Ports, port)
}

// HasIP 是否包含指定 IP
func (t *TargetRecord) HasIP(ip string) bool {
	return slices.Contains(t.IPs, ip)
}

// Action 返回动作记录，未执行过返回零值
func (t *TargetRecord) Action(key string) ActionRecord {
	if t.Actions == nil {
		return ActionRecord{}
	}
	return t.Actions[key]
}

// SetAction 写入动作记录
func (t *TargetRecord) SetAction(key string, rec ActionRecord) {
	if t.Actions == nil {
		t.Actions = make(map[string]ActionRecord)
	}
	t.Actions[key] = rec
}

// AddIP 并入 IP (去重、数值排序)
func (t *TargetRecord) AddIP(ip string) {
	t.IPs = MergeIPs(t.IPs, ip)
}

// AddHostname 并入主机名 (去重、字典序)
func (t *TargetRecord) AddHostname(name string) {
	t.Hostnames = MergeStrings(t.Hostnames, name)
}

// AddPorts 并入端口 (去重、数值排序)
func (t *TargetRecord) AddPorts(ports ...int) {
	t.Ports = MergePorts(t.Ports, ports...)
}

// Clone 深拷贝
func (t *TargetRecord) Clone() *TargetRecord {
	c := &TargetRecord{
		MAC:       t.MAC,
		IPs:       slices.Clone(t.IPs),
		Hostnames: slices.Clone(t.Hostnames),
		Alive:     t.Alive,
		Ports:     slices.Clone(t.Ports),
		Actions:   make(map[string]ActionRecord, len(t.Actions)),
	}
	for k, v := range t.Actions {
		c.Actions[k] = v
	}
	return c
}

// MergeIPs 合并 IP 集合，空串被忽略
func MergeIPs(existing []string, ips ...string) []string {
	out := mergeSet(existing, ips)
	sort.SliceStable(out, func(i, j int) bool { return utils.CompareIP(out[i], out[j]) < 0 })
	return out
}

// MergeStrings 合并字符串集合，空串被忽略
func MergeStrings(existing []string, values ...string) []string {
	out := mergeSet(existing, values)
	sort.Strings(out)
	return out
}

// MergePorts 合并端口集合
func MergePorts(existing []int, ports ...int) []int {
	seen := make(map[int]struct{}, len(existing)+len(ports))
	out := make([]int, 0, len(existing)+len(ports))
	for _, p := range append(slices.Clone(existing), ports...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func mergeSet(existing, values []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(values))
	out := make([]string, 0, len(existing)+len(values))
	for _, v := range append(slices.Clone(existing), values...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// JoinPorts 端口集合序列化为 ; 分隔文本
func JoinPorts(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ";")
}

// SplitPorts 解析 ; 分隔的端口文本，非法项被忽略
func SplitPorts(cell string) []int {
	var ports []int
	for _, item := range SplitCell(cell) {
		p, err := strconv.Atoi(item)
		if err != nil {
			continue
		}
		ports = append(ports, p)
	}
	return MergePorts(nil, ports...)
}

// SplitCell 解析 ; 分隔的多值单元格
func SplitCell(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(cell, ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
