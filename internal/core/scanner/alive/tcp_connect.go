package alive

import (
	"context"
	"fmt"
	"time"

	"neohunter/internal/core/lib/network/dialer"
)

// DefaultTCPProbePorts 屏蔽 ICMP 的主机通常仍开放这些端口之一
var DefaultTCPProbePorts = []int{22, 80, 443, 445, 3389}

// TcpConnectProber 基于 TCP Full Connect 的探测器
type TcpConnectProber struct {
	Ports []int
}

func NewTcpConnectProber(ports []int) *TcpConnectProber {
	if len(ports) == 0 {
		ports = DefaultTCPProbePorts
	}
	return &TcpConnectProber{Ports: ports}
}

func (p *TcpConnectProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan time.Duration, len(p.Ports))
	for _, port := range p.Ports {
		go func(port int) {
			start := time.Now()
			conn, err := dialer.Get().DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
			if err != nil {
				resultChan <- 0
				return
			}
			conn.Close()
			resultChan <- time.Since(start)
		}(port)
	}

	for i := 0; i < len(p.Ports); i++ {
		select {
		case latency := <-resultChan:
			if latency > 0 {
				return aliveBy(MethodTCP, latency, 0), nil
			}
		case <-ctx.Done():
			return unreachable(), nil
		}
	}
	return unreachable(), nil
}
