package alive

import (
	"time"
)

// 判定存活的探测方式
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
	MethodARP  = "arp"
)

// ProbeResult 单个 IP 的探测结果
// Method 只在 Alive 为 true 时有意义；ARP 兜底命中时没有时延与 TTL
type ProbeResult struct {
	Alive   bool
	Method  string
	Latency time.Duration
	TTL     int
}

// aliveBy 某种探测方式命中
func aliveBy(method string, latency time.Duration, ttl int) *ProbeResult {
	return &ProbeResult{Alive: true, Method: method, Latency: latency, TTL: ttl}
}

// unreachable 未响应
func unreachable() *ProbeResult {
	return &ProbeResult{}
}
