package port

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"neohunter/internal/core/lib/network/dialer"
	"neohunter/internal/core/lib/network/qos"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultConcurrency = 200
)

// Scanner TCP Connect 端口扫描
// 所有主机共享同一个 Limiter，限制整机同时打开的套接字数
type Scanner struct {
	limiter *qos.Limiter
	timeout time.Duration
	dial    dialer.Dialer
}

// NewScanner 创建端口扫描器，dial 为空时使用全局拨号器
func NewScanner(limiter *qos.Limiter, timeout time.Duration, dial dialer.Dialer) *Scanner {
	if limiter == nil {
		limiter = qos.NewLimiter("ports", DefaultConcurrency)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scanner{limiter: limiter, timeout: timeout, dial: dial}
}

// BuildPortList 返回 [start, end) 与 extra 的并集 (去重、升序)
func BuildPortList(start, end int, extra []int) []int {
	seen := make(map[int]struct{})
	var ports []int
	add := func(p int) {
		if p < 1 || p > 65535 {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}
	for p := start; p < end; p++ {
		add(p)
	}
	for _, p := range extra {
		add(p)
	}
	sort.Ints(ports)
	return ports
}

// ScanHost 扫描单台主机，返回开放端口 (升序)
func (s *Scanner) ScanHost(ctx context.Context, ip string, ports []int) []int {
	var (
		mu   sync.Mutex
		open []int
		wg   sync.WaitGroup
	)

	for _, p := range ports {
		if err := s.limiter.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			defer s.limiter.Release()
			if s.probe(ctx, ip, port) {
				mu.Lock()
				open = append(open, port)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	sort.Ints(open)
	return open
}

func (s *Scanner) probe(ctx context.Context, ip string, port int) bool {
	d := s.dial
	if d == nil {
		d = dialer.Get()
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
