package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neohunter/internal/config"
	"neohunter/internal/core/kb"
	"neohunter/internal/core/scanner/alive"
	"neohunter/internal/core/status"
)

type fakeSweeper struct {
	alive   []string
	onSweep func()
}

func (f *fakeSweeper) SweepHosts(ctx context.Context, ips []string) []alive.Host {
	if f.onSweep != nil {
		f.onSweep()
	}
	want := make(map[string]bool, len(f.alive))
	for _, ip := range f.alive {
		want[ip] = true
	}
	var out []alive.Host
	for _, ip := range ips {
		if want[ip] {
			out = append(out, alive.Host{IP: ip})
		}
	}
	return out
}

type fakePorts map[string][]int

func (f fakePorts) ScanHost(ctx context.Context, ip string, ports []int) []int {
	allowed := make(map[int]bool, len(ports))
	for _, p := range ports {
		allowed[p] = true
	}
	var open []int
	for _, p := range f[ip] {
		if allowed[p] {
			open = append(open, p)
		}
	}
	return open
}

type fakeMACs struct {
	macs  map[string]string
	calls atomic.Int32
}

func (f *fakeMACs) LookupMAC(ip string) (string, error) {
	f.calls.Add(1)
	if mac, ok := f.macs[ip]; ok {
		return mac, nil
	}
	return "", alive.ErrMACNotFound
}

func testDiscoveryConfig() *config.DiscoveryConfig {
	return &config.DiscoveryConfig{
		PortStart:       1,
		PortEnd:         2,
		PortList:        []int{21, 22, 80},
		HostConcurrency: 4,
		MACRetries:      3,
		MACRetryDelay:   time.Millisecond,
		BlacklistCheck:  true,
		IPBlacklist:     []string{"10.0.0.4"},
		ScanResultsKeep: 20,
	}
}

func newTestEngine(t *testing.T, cfg *config.DiscoveryConfig, sweeper HostSweeper, ports PortScanner, macs MACLookup) (*Engine, *kb.Store, *status.Board, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := kb.Open(filepath.Join(dir, "netkb.csv"), []string{"SSHBruteforce"})
	require.NoError(t, err)
	board := status.NewBoard(filepath.Join(dir, "livestatus.csv"))
	results := filepath.Join(dir, "scan_results")

	clock := time.Date(2026, 2, 3, 10, 0, 0, 0, time.Local)
	e := NewEngine(cfg, results, store, board,
		WithSweeper(sweeper),
		WithPortScanner(ports),
		WithMACLookup(macs),
		WithNameResolver(func(ctx context.Context, ip string) string {
			if ip == "10.0.0.2" {
				return "nas"
			}
			return ""
		}),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	return e, store, board, results
}

func TestDiscover_ReconcilesIntoKB(t *testing.T) {
	cfg := testDiscoveryConfig()
	macs := &fakeMACs{macs: map[string]string{
		"10.0.0.1": "aa:aa:aa:aa:aa:01",
		"10.0.0.2": "aa:aa:aa:aa:aa:02",
		"10.0.0.4": "aa:aa:aa:aa:aa:04",
	}}
	sweeper := &fakeSweeper{alive: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}}
	ports := fakePorts{"10.0.0.1": {22, 443}, "10.0.0.2": {21, 80}, "10.0.0.3": {22}}

	e, store, board, results := newTestEngine(t, cfg, sweeper, ports, macs)

	res, err := e.Discover(context.Background(), DiscoverOptions{
		Network: "10.0.0.0/29", PortStart: 1, PortEnd: 2, ExtraPorts: []int{21, 22, 80},
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/29", res.Network)
	assert.Len(t, res.Hosts, 4)

	records := store.Read()
	require.Len(t, records, 3, "blacklisted IP must not be stored")

	assert.Equal(t, "aa:aa:aa:aa:aa:01", records[0].MAC)
	assert.Equal(t, []int{22}, records[0].Ports, "443 is outside the scanned port list")
	assert.Equal(t, "aa:aa:aa:aa:aa:02", records[1].MAC)
	assert.Equal(t, []string{"nas"}, records[1].Hostnames)
	assert.Equal(t, []int{21, 80}, records[1].Ports)
	assert.Equal(t, "10.0.0.3_NoHostname", records[2].MAC)

	assert.Equal(t, kb.Summary{TotalOpenPorts: 4, AliveHosts: 3, KnownHosts: 3}, res.Summary)
	assert.Equal(t, status.Counters{OpenPorts: 4, AliveHosts: 3, KnownHosts: 3}, board.Snapshot().Counters)

	require.FileExists(t, res.ScanFile)
	require.FileExists(t, res.ResultFile)
	assert.Equal(t, results, filepath.Dir(res.ScanFile))
	assert.Contains(t, filepath.Base(res.ScanFile), "scan_10.0.0.0_29_")

	// 10.0.0.3 没有 MAC，重试次数用尽
	assert.GreaterOrEqual(t, macs.calls.Load(), int32(3+3))
}

func TestDiscover_MarksVanishedHostsOffline(t *testing.T) {
	cfg := testDiscoveryConfig()
	macs := &fakeMACs{macs: map[string]string{"10.0.0.1": "aa:aa:aa:aa:aa:01", "10.0.0.2": "aa:aa:aa:aa:aa:02"}}
	sweeper := &fakeSweeper{alive: []string{"10.0.0.1", "10.0.0.2"}}
	ports := fakePorts{"10.0.0.1": {22}, "10.0.0.2": {80}}
	e, store, _, _ := newTestEngine(t, cfg, sweeper, ports, macs)

	opts := DiscoverOptions{Network: "10.0.0.0/29", PortStart: 1, PortEnd: 2, ExtraPorts: []int{22, 80}}
	_, err := e.Discover(context.Background(), opts)
	require.NoError(t, err)

	sweeper.alive = []string{"10.0.0.1"}
	res, err := e.Discover(context.Background(), opts)
	require.NoError(t, err)

	r, err := store.Get("aa:aa:aa:aa:aa:02")
	require.NoError(t, err)
	assert.False(t, r.Alive)
	assert.Equal(t, []int{80}, r.Ports, "ports survive the liveness flip")
	assert.Equal(t, 2, res.Summary.KnownHosts)
	assert.Equal(t, 1, res.Summary.AliveHosts)
}

func TestDiscover_PrunesArtifacts(t *testing.T) {
	cfg := testDiscoveryConfig()
	cfg.ScanResultsKeep = 3
	macs := &fakeMACs{macs: map[string]string{"10.0.0.1": "aa:aa:aa:aa:aa:01"}}
	e, _, _, results := newTestEngine(t, cfg, &fakeSweeper{alive: []string{"10.0.0.1"}}, fakePorts{}, macs)

	for i := 0; i < 4; i++ {
		_, err := e.Discover(context.Background(), DiscoverOptions{Network: "10.0.0.0/30"})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(results)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDiscover_Cancelled(t *testing.T) {
	e, _, _, _ := newTestEngine(t, testDiscoveryConfig(), &fakeSweeper{}, fakePorts{}, &fakeMACs{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Discover(ctx, DiscoverOptions{Network: "10.0.0.0/30"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDiscover_CompletesPassAfterCancel(t *testing.T) {
	macs := &fakeMACs{macs: map[string]string{"10.0.0.1": "aa:aa:aa:aa:aa:01"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &fakeSweeper{alive: []string{"10.0.0.1"}, onSweep: cancel}
	e, store, _, _ := newTestEngine(t, testDiscoveryConfig(), sweeper, fakePorts{"10.0.0.1": {22}}, macs)

	res, err := e.Discover(ctx, DiscoverOptions{Network: "10.0.0.0/30", ExtraPorts: []int{22}})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Equal(t, 1, res.Summary.AliveHosts)

	r, err := store.Get("aa:aa:aa:aa:aa:01")
	require.NoError(t, err)
	assert.True(t, r.Alive)
	assert.Equal(t, []int{22}, r.Ports)
}

func TestDiscover_ClampsWideNetwork(t *testing.T) {
	macs := &fakeMACs{macs: map[string]string{"10.0.3.1": "aa:aa:aa:aa:aa:31"}}
	sweeper := &fakeSweeper{alive: []string{"10.0.3.1", "10.1.0.1"}}
	e, store, _, _ := newTestEngine(t, testDiscoveryConfig(), sweeper, fakePorts{}, macs)

	res, err := e.Discover(context.Background(), DiscoverOptions{Network: "10.0.3.7/8"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/16", res.Network)
	require.Len(t, res.Hosts, 1, "10.1.0.1 lies outside the swept window")

	records := store.Read()
	require.Len(t, records, 1)
	assert.Equal(t, "aa:aa:aa:aa:aa:31", records[0].MAC)
}

func TestDefaultOptions_FollowsConfigReload(t *testing.T) {
	e, _, _, _ := newTestEngine(t, testDiscoveryConfig(), &fakeSweeper{}, fakePorts{}, &fakeMACs{})
	assert.Equal(t, []int{21, 22, 80}, e.DefaultOptions().ExtraPorts)

	next := testDiscoveryConfig()
	next.PortList = []int{3306}
	e.UpdateConfig(next)
	assert.Equal(t, []int{3306}, e.DefaultOptions().ExtraPorts)
}

func TestMACResolver_RetriesThenSucceeds(t *testing.T) {
	lookup := &flakyLookup{failures: 2, mac: "aa:bb:cc:dd:ee:ff"}
	r := NewMACResolver(lookup, 5, time.Millisecond)
	mac, err := r.Resolve(context.Background(), "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)
	assert.Equal(t, 3, lookup.calls)
}

func TestMACResolver_GivesUp(t *testing.T) {
	lookup := &flakyLookup{failures: 10}
	r := NewMACResolver(lookup, 5, time.Millisecond)
	_, err := r.Resolve(context.Background(), "10.0.0.9")
	require.Error(t, err)
	assert.Equal(t, 5, lookup.calls)
}

func TestFallbackIdentity(t *testing.T) {
	assert.Equal(t, "10.0.0.3_NoHostname", FallbackIdentity("10.0.0.3", ""))
	assert.Equal(t, "10.0.0.3_printer", FallbackIdentity("10.0.0.3", "printer"))
}

func TestDefaultRouteInterface(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route")
	content := "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\n" +
		"eth0\t0001A8C0\t00000000\t0001\t0\t0\t0\t00FFFFFF\n" +
		"wlan0\t00000000\t0101A8C0\t0003\t0\t0\t600\t00000000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	name, err := defaultRouteInterface(path)
	require.NoError(t, err)
	assert.Equal(t, "wlan0", name)

	_, err = defaultRouteInterface(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type flakyLookup struct {
	failures int
	calls    int
	mac      string
}

func (f *flakyLookup) LookupMAC(ip string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", alive.ErrMACNotFound
	}
	return f.mac, nil
}
