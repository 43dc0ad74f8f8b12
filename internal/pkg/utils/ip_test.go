package utils

import (
	"net"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPKey_NumericOrder(t *testing.T) {
	ips := []string{"10.0.0.10", "10.0.0.9", "STANDALONE", "10.0.0.100", "9.255.255.255"}
	sort.SliceStable(ips, func(i, j int) bool { return CompareIP(ips[i], ips[j]) < 0 })
	assert.Equal(t, []string{"STANDALONE", "9.255.255.255", "10.0.0.9", "10.0.0.10", "10.0.0.100"}, ips)
}

func TestHostsInCIDR(t *testing.T) {
	hosts, err := HostsInCIDR("192.168.1.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, hosts)

	hosts, err = HostsInCIDR("10.0.0.7/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.7"}, hosts)

	hosts, err = HostsInCIDR("10.0.0.0/24")
	require.NoError(t, err)
	assert.Len(t, hosts, 254)

	hosts, err = HostsInCIDR("10.20.30.40/8")
	require.NoError(t, err)
	assert.Len(t, hosts, 65534)
	assert.Equal(t, "10.20.0.1", hosts[0])
	assert.Equal(t, "10.20.255.254", hosts[len(hosts)-1])

	_, err = HostsInCIDR("nonsense")
	assert.Error(t, err)
}

func TestClampNetwork(t *testing.T) {
	cidr, clamped, err := ClampNetwork("172.16.5.9/12")
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, "172.16.0.0/16", cidr)

	cidr, clamped, err = ClampNetwork("192.168.1.23/24")
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Equal(t, "192.168.1.0/24", cidr)

	_, _, err = ClampNetwork("fd00::/64")
	assert.Error(t, err)
}

func TestNetworkOf(t *testing.T) {
	assert.Equal(t, "192.168.1.0/24", NetworkOf(net.ParseIP("192.168.1.23").To4(), net.CIDRMask(24, 32)))
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", NormalizeIP("10.0.0.1:8080"))
	assert.Equal(t, "10.0.0.1", NormalizeIP("10.0.0.1, 10.0.0.2"))
	assert.Equal(t, "192.0.2.1", NormalizeIP("::ffff:192.0.2.1"))
}

func TestGenerateShortID(t *testing.T) {
	id := GenerateShortID("cycle")
	assert.Len(t, id, len("cycle-")+8)
	assert.True(t, IsValidUUID(GenerateUUID()))
}
