package dialer

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout 未配置 port_timeout 时的连接超时
const DefaultTimeout = 3 * time.Second

// Dialer 连接建立接口
// 端口扫描、TCP 存活探测、口令检查与数据收集共用全局实例，代理只需配置一处
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer 直连
// 探测连接都是短连接，关闭 keep-alive
type DefaultDialer struct {
	Timeout time.Duration
	base    net.Dialer
}

func NewDefaultDialer(timeout time.Duration) *DefaultDialer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultDialer{
		Timeout: timeout,
		base:    net.Dialer{Timeout: timeout, KeepAlive: -1},
	}
}

func (d *DefaultDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.base.DialContext(ctx, network, address)
}

func (d *DefaultDialer) String() string {
	return fmt.Sprintf("direct (timeout %s)", d.Timeout)
}

// Describe 拨号器的日志描述，不包含代理凭据
func Describe(d Dialer) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", d)
}
