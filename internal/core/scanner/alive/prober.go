package alive

import (
	"context"
	"time"
)

// Prober 定义探测器接口
type Prober interface {
	// Probe 对单个 IP 执行一次无端口存活探测
	Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error)
}

// MultiProber 组合探测器
type MultiProber struct {
	probers []Prober
}

func NewMultiProber(probers ...Prober) *MultiProber {
	return &MultiProber{probers: probers}
}

// Probe 并发执行所有探测器，只要有一个成功即返回存活
func (m *MultiProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan *ProbeResult, len(m.probers))
	for _, p := range m.probers {
		go func(prober Prober) {
			res, err := prober.Probe(ctx, ip, timeout)
			if err != nil || res == nil {
				res = unreachable()
			}
			resultChan <- res
		}(p)
	}

	for i := 0; i < len(m.probers); i++ {
		select {
		case res := <-resultChan:
			if res.Alive {
				return res, nil
			}
		case <-ctx.Done():
			return unreachable(), nil
		}
	}
	return unreachable(), nil
}
