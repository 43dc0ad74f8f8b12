package utils

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// NormalizeIP 标准化IP地址：
// - 若是带端口的地址，去掉端口
// - 若是 X-Forwarded-For 列表，取第一个
// - 若是 IPv4-mapped IPv6 (::ffff:192.0.2.1)，转成纯 IPv4
// - 否则按原样返回（包括真 IPv6）
func NormalizeIP(input string) string {
	if input == "" {
		return ""
	}

	ip := strings.TrimSpace(strings.Split(input, ",")[0])

	if h, _, err := net.SplitHostPort(ip); err == nil {
		ip = h
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}

	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}

	return parsed.String()
}

// GetClientIP 从Gin上下文获取客户端IP
func GetClientIP(c *gin.Context) string {
	clientIPRaw := c.GetHeader("X-Forwarded-For")
	if clientIPRaw == "" {
		clientIPRaw = c.GetHeader("X-Real-IP")
	}
	if clientIPRaw == "" {
		clientIPRaw = c.ClientIP()
	}
	return NormalizeIP(clientIPRaw)
}

// IPKey 返回 IPv4 地址的数值排序键
// 非 IPv4 文本 (如 STANDALONE) 返回 -1，排在所有真实地址之前
func IPKey(ip string) int64 {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return -1
	}
	v4 := parsed.To4()
	if v4 == nil {
		return -1
	}
	return int64(binary.BigEndian.Uint32(v4))
}

// CompareIP 按数值比较两个地址，非地址文本之间按字典序
func CompareIP(a, b string) int {
	ka, kb := IPKey(a), IPKey(b)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// MaxSweepBits 单轮展开的最大主机位数 (/16)
const MaxSweepBits = 16

// ClampNetwork 宽于 /16 的 IPv4 网段收窄为包含该地址的 /16 窗口
// 返回收窄后的 CIDR 与是否发生了收窄
func ClampNetwork(cidr string) (string, bool, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", false, fmt.Errorf("invalid cidr %s: %w", cidr, err)
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", false, fmt.Errorf("only ipv4 networks are supported: %s", cidr)
	}
	ones, bits := ipnet.Mask.Size()
	if bits-ones <= MaxSweepBits {
		return ipnet.String(), false, nil
	}
	return NetworkOf(v4, net.CIDRMask(bits-MaxSweepBits, bits)), true, nil
}

// HostsInCIDR 展开网段内的所有主机地址 (去掉网络地址与广播地址)
// 宽于 /16 的网段按 ClampNetwork 收窄，防止误配置导致内存暴涨
func HostsInCIDR(cidr string) ([]string, error) {
	clamped, _, err := ClampNetwork(cidr)
	if err != nil {
		return nil, err
	}
	_, ipnet, err := net.ParseCIDR(clamped)
	if err != nil {
		return nil, fmt.Errorf("invalid cidr %s: %w", clamped, err)
	}
	base := ipnet.IP.To4()
	ones, bits := ipnet.Mask.Size()

	start := binary.BigEndian.Uint32(base)
	size := uint32(1) << uint(bits-ones)

	// /31 与 /32 没有网络/广播地址
	first, last := start, start+size-1
	if size > 2 {
		first, last = start+1, start+size-2
	}

	hosts := make([]string, 0, last-first+1)
	buf := make(net.IP, 4)
	for n := first; n <= last; n++ {
		binary.BigEndian.PutUint32(buf, n)
		hosts = append(hosts, buf.String())
		if n == last {
			break
		}
	}
	return hosts, nil
}

// NetworkOf 由地址与掩码计算 CIDR 文本，如 192.168.1.23 + 255.255.255.0 => 192.168.1.0/24
func NetworkOf(ip net.IP, mask net.IPMask) string {
	network := &net.IPNet{IP: ip.Mask(mask), Mask: mask}
	return network.String()
}
