package alive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrMACNotFound ARP 表中没有该地址的完整条目
var ErrMACNotFound = errors.New("mac address not found in arp table")

// ArpTablePath Linux ARP 表
var ArpTablePath = "/proc/net/arp"

// ArpTable 读取内核 ARP 缓存
// 探测过的主机会在 ARP 缓存中留下完整条目，用于解析 MAC 和补充存活判定
type ArpTable struct {
	Path string
}

func NewArpTable() *ArpTable {
	return &ArpTable{Path: ArpTablePath}
}

// Entries 返回 IP -> MAC 映射，只包含完整条目 (flags 0x2)
func (a *ArpTable) Entries() (map[string]string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read arp table: %w", err)
	}
	defer f.Close()

	entries := make(map[string]string)
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false // 表头
			continue
		}
		// IP address  HW type  Flags  HW address  Mask  Device
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		ip, flags, mac := fields[0], fields[2], strings.ToLower(fields[3])
		if flags == "0x0" || mac == "00:00:00:00:00:00" {
			continue
		}
		entries[ip] = mac
	}
	return entries, scanner.Err()
}

// LookupMAC 查询单个 IP 的 MAC
func (a *ArpTable) LookupMAC(ip string) (string, error) {
	entries, err := a.Entries()
	if err != nil {
		return "", err
	}
	if mac, ok := entries[ip]; ok {
		return mac, nil
	}
	return "", ErrMACNotFound
}

// ArpProber 通过 ARP 缓存判定存活
// 只在其它探测器之后兜底使用：ICMP/TCP 失败但内核已解析出 MAC 的主机同样在线
type ArpProber struct {
	table *ArpTable
}

func NewArpProber(table *ArpTable) *ArpProber {
	if table == nil {
		table = NewArpTable()
	}
	return &ArpProber{table: table}
}

func (p *ArpProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	if _, err := p.table.LookupMAC(ip); err != nil {
		return unreachable(), nil
	}
	return aliveBy(MethodARP, 0, 0), nil
}
