package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"

	"neohunter/internal/pkg/utils"
)

// RouteTablePath Linux 路由表
var RouteTablePath = "/proc/net/route"

// ErrNoInterface 找不到可用网卡
var ErrNoInterface = errors.New("no usable network interface")

// LocalNet 本机所在网段
type LocalNet struct {
	Interface string `json:"interface"`
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	CIDR      string `json:"cidr"`
}

// DetectLocalNetwork 探测本机网段
// name 为空时取默认路由网卡，读不到路由表则取第一个 up 的非回环网卡
func DetectLocalNetwork(name string) (*LocalNet, error) {
	if name == "" {
		name, _ = defaultRouteInterface(RouteTablePath)
	}

	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	if name != "" {
		for _, iface := range ifaces {
			if iface.Name == name {
				if ln := localNetFrom(iface); ln != nil {
					return ln, nil
				}
			}
		}
	}

	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		if ln := localNetFrom(iface); ln != nil {
			return ln, nil
		}
	}
	return nil, ErrNoInterface
}

func localNetFrom(iface psnet.InterfaceStat) *LocalNet {
	for _, addr := range iface.Addrs {
		ip, ipnet, err := net.ParseCIDR(addr.Addr)
		if err != nil || ip.To4() == nil || ip.IsLoopback() {
			continue
		}
		return &LocalNet{
			Interface: iface.Name,
			IP:        ip.String(),
			MAC:       strings.ToLower(iface.HardwareAddr),
			CIDR:      utils.NetworkOf(ip, ipnet.Mask),
		}
	}
	return nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

// defaultRouteInterface 解析 /proc/net/route，返回目的地址为 0.0.0.0 的网卡
func defaultRouteInterface(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "00000000" {
			return fields[0], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", ErrNoInterface
}
