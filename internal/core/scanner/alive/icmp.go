package alive

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// IcmpProber ICMP Echo 探测
// 非特权模式在 Linux 上走 UDP ping (需要 net.ipv4.ping_group_range 允许)
type IcmpProber struct {
	Privileged bool
}

func NewIcmpProber(privileged bool) *IcmpProber {
	return &IcmpProber{Privileged: privileged}
}

func (p *IcmpProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return unreachable(), err
	}
	pinger.SetPrivileged(p.Privileged)
	pinger.Count = 1
	pinger.Timeout = timeout

	var ttl int
	pinger.OnRecv = func(pkt *probing.Packet) {
		ttl = pkt.TTL
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		return unreachable(), err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return unreachable(), nil
	}
	return aliveBy(MethodICMP, stats.AvgRtt, ttl), nil
}
