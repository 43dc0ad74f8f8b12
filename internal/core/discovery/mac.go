package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// MACLookup 单次 MAC 查询 (alive.ArpTable 实现)
type MACLookup interface {
	LookupMAC(ip string) (string, error)
}

// MACResolver 带重试的 MAC 解析
// 新上线的主机在 ARP 缓存中可能滞后出现，按固定间隔重试
type MACResolver struct {
	lookup MACLookup
	tries  int
	delay  time.Duration
}

// NewMACResolver 创建解析器，tries < 1 视为 1
func NewMACResolver(lookup MACLookup, tries int, delay time.Duration) *MACResolver {
	if tries < 1 {
		tries = 1
	}
	return &MACResolver{lookup: lookup, tries: tries, delay: delay}
}

// Resolve 查询 MAC，全部尝试失败返回错误
func (r *MACResolver) Resolve(ctx context.Context, ip string) (string, error) {
	op := func() (string, error) {
		return r.lookup.LookupMAC(ip)
	}
	mac, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.delay)),
		backoff.WithMaxTries(uint(r.tries)),
	)
	if err != nil {
		return "", fmt.Errorf("resolve mac for %s: %w", ip, err)
	}
	return mac, nil
}

// FallbackIdentity MAC 无法解析时的伪标识
func FallbackIdentity(ip, hostname string) string {
	if hostname == "" {
		return ip + "_NoHostname"
	}
	return ip + "_" + hostname
}
