package alive

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"neohunter/internal/pkg/utils"
)

// Host 存活主机
type Host struct {
	IP      string
	Method  string
	Latency time.Duration
	TTL     int
}

// Sweeper 网段存活扫描
type Sweeper struct {
	prober      Prober
	concurrency int
	timeout     time.Duration
}

// NewSweeper 创建存活扫描器
func NewSweeper(prober Prober, concurrency int, timeout time.Duration) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Sweeper{prober: prober, concurrency: concurrency, timeout: timeout}
}

// NewDefaultProber ICMP + TCP 并发探测，两者都失败再查 ARP 缓存
func NewDefaultProber(privilegedICMP bool, arp *ArpTable) Prober {
	return &fallbackProber{
		primary:  NewMultiProber(NewIcmpProber(privilegedICMP), NewTcpConnectProber(nil)),
		fallback: NewArpProber(arp),
	}
}

type fallbackProber struct {
	primary  Prober
	fallback Prober
}

func (p *fallbackProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	res, err := p.primary.Probe(ctx, ip, timeout)
	if err == nil && res != nil && res.Alive {
		return res, nil
	}
	return p.fallback.Probe(ctx, ip, timeout)
}

// SweepHosts 探测给定的地址列表，按 IP 数值排序返回存活主机
// ctx 取消后停止派发新的探测
func (s *Sweeper) SweepHosts(ctx context.Context, ips []string) []Host {
	var (
		mu    sync.Mutex
		hosts []Host
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ip := range ips {
		if gctx.Err() != nil {
			break
		}
		ip := ip
		g.Go(func() error {
			res, err := s.prober.Probe(gctx, ip, s.timeout)
			if err != nil || res == nil || !res.Alive {
				return nil
			}
			mu.Lock()
			hosts = append(hosts, Host{IP: ip, Method: res.Method, Latency: res.Latency, TTL: res.TTL})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(hosts, func(i, j int) bool { return utils.CompareIP(hosts[i].IP, hosts[j].IP) < 0 })
	return hosts
}
