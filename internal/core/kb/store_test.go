package kb

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neohunter/internal/core/model"
)

type staticBlacklist struct {
	macs map[string]bool
	ips  map[string]bool
}

func (b staticBlacklist) IsBlacklisted(mac, ip string) bool {
	return b.macs[mac] || b.ips[ip]
}

func openStore(t *testing.T, keys ...string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "netkb.csv"), keys)
	require.NoError(t, err)
	return s
}

func readFile(t *testing.T, s *Store) string {
	t.Helper()
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	return string(b)
}

func TestOpen_WritesHeader(t *testing.T) {
	s := openStore(t, "SSHBruteforce", "FTPBruteforce")
	assert.Equal(t, "MAC Address,IPs,Hostnames,Alive,Ports,SSHBruteforce,FTPBruteforce\n", readFile(t, s))
	assert.Empty(t, s.Read())
}

func TestRead_ExtendsHeaderForNewActions(t *testing.T) {
	s := openStore(t, "SSHBruteforce")
	_, err := s.Reconcile([]model.Observation{{MAC: "aa:aa:aa:aa:aa:01", IP: "10.0.0.1", Ports: []int{22}}}, nil)
	require.NoError(t, err)

	s.RegisterActions("FTPBruteforce")
	records := s.Read()
	require.Len(t, records, 1)
	assert.Equal(t, []string{"SSHBruteforce", "FTPBruteforce"}, s.ActionKeys())
	assert.True(t, strings.HasPrefix(readFile(t, s), "MAC Address,IPs,Hostnames,Alive,Ports,SSHBruteforce,FTPBruteforce\n"))
}

func TestReconcile_Idempotent(t *testing.T) {
	s := openStore(t, "SSHBruteforce")
	obs := []model.Observation{
		{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.5", Hostname: "nas", Ports: []int{22, 80}},
		{MAC: "11:22:33:44:55:66", IP: "10.0.0.2", Ports: []int{443}},
	}

	_, err := s.Reconcile(obs, nil)
	require.NoError(t, err)
	first := readFile(t, s)

	_, err = s.Reconcile(obs, nil)
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, s))
	assert.Contains(t, first, "aa:bb:cc:dd:ee:ff,10.0.0.5,nas,1,22;80,\n")
}

func TestReconcile_SingleIPInvariant(t *testing.T) {
	s := openStore(t)
	alive, err := s.Reconcile([]model.Observation{
		{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.5"},
		{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.6"},
		{MAC: "11:22:33:44:55:66", IP: "10.0.0.7"},
	}, nil)
	require.NoError(t, err)

	records := s.Read()
	require.Len(t, records, 1)
	assert.Equal(t, "11:22:33:44:55:66", records[0].MAC)
	assert.Equal(t, map[string]struct{}{"11:22:33:44:55:66": {}}, alive, "dropped entries are not reported alive")
	for _, r := range records {
		assert.Len(t, r.IPs, 1)
	}
}

func TestReconcile_LivenessFlipKeepsHistory(t *testing.T) {
	s := openStore(t)
	_, err := s.Reconcile([]model.Observation{{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.5", Hostname: "nas", Ports: []int{22}}}, nil)
	require.NoError(t, err)

	alive, err := s.Reconcile(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, alive)

	r, err := s.Get("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.False(t, r.Alive)
	assert.Equal(t, []int{22}, r.Ports)
	assert.Equal(t, []string{"nas"}, r.Hostnames)
}

func TestReconcile_PortsAccumulate(t *testing.T) {
	s := openStore(t)
	_, err := s.Reconcile([]model.Observation{{MAC: "m1", IP: "10.0.0.5", Ports: []int{80}}}, nil)
	require.NoError(t, err)
	_, err = s.Reconcile([]model.Observation{{MAC: "m1", IP: "10.0.0.5", Ports: []int{22}}}, nil)
	require.NoError(t, err)

	r, err := s.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, []int{22, 80}, r.Ports)
}

func TestReconcile_IPReassignedMarksPreviousOwnerOffline(t *testing.T) {
	s := openStore(t)
	_, err := s.Reconcile([]model.Observation{{MAC: "m1", IP: "10.0.0.5"}}, nil)
	require.NoError(t, err)

	// m1 先出现，m2 随后在同一轮认领 10.0.0.5
	alive, err := s.Reconcile([]model.Observation{
		{MAC: "m1", IP: "10.0.0.5"},
		{MAC: "m2", IP: "10.0.0.5"},
	}, nil)
	require.NoError(t, err)

	m1, err := s.Get("m1")
	require.NoError(t, err)
	m2, err := s.Get("m2")
	require.NoError(t, err)
	assert.False(t, m1.Alive)
	assert.True(t, m2.Alive)
	assert.Equal(t, map[string]struct{}{"m2": {}}, alive)
}

func TestReconcile_SkipsReservedAndBlacklisted(t *testing.T) {
	s := openStore(t)
	bl := staticBlacklist{macs: map[string]bool{"de:ad:be:ef:00:01": true}, ips: map[string]bool{"10.0.0.99": true}}
	alive, err := s.Reconcile([]model.Observation{
		{MAC: "", IP: "10.0.0.1"},
		{MAC: model.StandaloneMAC, IP: "10.0.0.2"},
		{MAC: model.ZeroMAC, IP: "10.0.0.3"},
		{MAC: "de:ad:be:ef:00:01", IP: "10.0.0.4"},
		{MAC: "m5", IP: "10.0.0.99"},
		{MAC: "m6", IP: "10.0.0.6"},
	}, bl)
	require.NoError(t, err)

	assert.Equal(t, map[string]struct{}{"m6": {}}, alive)
	records := s.Read()
	require.Len(t, records, 1)
	assert.Equal(t, "m6", records[0].MAC)
}

func TestSort_NumericWithStandaloneFirst(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.EnsureStandalone())
	_, err := s.Reconcile([]model.Observation{
		{MAC: "m100", IP: "10.0.0.100"},
		{MAC: "m9", IP: "10.0.0.9"},
		{MAC: "m10", IP: "10.0.0.10"},
	}, nil)
	require.NoError(t, err)

	var macs []string
	for _, r := range s.Read() {
		macs = append(macs, r.MAC)
	}
	assert.Equal(t, []string{model.StandaloneMAC, "m9", "m10", "m100"}, macs)
}

func TestWrite_MergeKeepsNonEmptyFields(t *testing.T) {
	s := openStore(t, "SSHBruteforce", "FTPBruteforce")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)

	base := model.NewTargetRecord("m1")
	base.AddIP("10.0.0.5")
	base.AddHostname("nas")
	base.AddPorts(22)
	base.Alive = true
	base.SetAction("SSHBruteforce", model.NewActionRecord(model.OutcomeFailed, at))
	require.NoError(t, s.Write([]*model.TargetRecord{base}))

	partial := model.NewTargetRecord("m1")
	partial.Alive = true
	partial.SetAction("FTPBruteforce", model.NewActionRecord(model.OutcomeSuccess, at))
	require.NoError(t, s.Write([]*model.TargetRecord{partial}))

	r, err := s.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5"}, r.IPs)
	assert.Equal(t, []string{"nas"}, r.Hostnames)
	assert.Equal(t, []int{22}, r.Ports)
	assert.Equal(t, model.OutcomeFailed, r.Action("SSHBruteforce").Outcome)
	assert.Equal(t, model.OutcomeSuccess, r.Action("FTPBruteforce").Outcome)
}

func TestWrite_UnionsUnknownActionColumns(t *testing.T) {
	s := openStore(t, "SSHBruteforce")
	r := model.NewTargetRecord("m1")
	r.AddIP("10.0.0.5")
	r.SetAction("Extra", model.NewActionRecord(model.OutcomeSuccess, time.Now()))
	require.NoError(t, s.Write([]*model.TargetRecord{r}))

	assert.Equal(t, []string{"SSHBruteforce", "Extra"}, s.ActionKeys())
}

func TestRecordOutcome(t *testing.T) {
	s := openStore(t, "SSHBruteforce")
	_, err := s.Reconcile([]model.Observation{{MAC: "m1", IP: "10.0.0.5", Ports: []int{22}}}, nil)
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	require.NoError(t, s.RecordOutcome("m1", "SSHBruteforce", model.NewActionRecord(model.OutcomeFailed, at)))
	assert.Contains(t, readFile(t, s), "failed_20260102_030405")

	err = s.RecordOutcome("missing", "SSHBruteforce", model.NewActionRecord(model.OutcomeFailed, at))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	keys := []string{"A0", "A1", "A2", "A3", "A4", "A5", "A6", "A7"}
	s := openStore(t, keys...)
	_, err := s.Reconcile([]model.Observation{{MAC: "m1", IP: "10.0.0.5"}}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			assert.NoError(t, s.RecordOutcome("m1", key, model.NewActionRecord(model.OutcomeSuccess, time.Now())))
		}(k)
	}
	wg.Wait()

	r, err := s.Get("m1")
	require.NoError(t, err)
	for _, k := range keys {
		assert.True(t, r.Action(k).Succeeded(), k)
	}
}

func TestRead_CorruptFileReturnsEmpty(t *testing.T) {
	s := openStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("not,a,netkb\n"), 0644))
	assert.Empty(t, s.Read())
	assert.Error(t, s.Update(func(r []*model.TargetRecord) []*model.TargetRecord { return r }))
}

func TestSummarize(t *testing.T) {
	a := model.NewTargetRecord("m1")
	a.Alive = true
	a.AddPorts(22, 80)
	b := model.NewTargetRecord("m2")
	b.AddPorts(443)
	sum := Summarize([]*model.TargetRecord{model.NewStandaloneRecord(), a, b})
	assert.Equal(t, Summary{TotalOpenPorts: 2, AliveHosts: 1, KnownHosts: 2}, sum)
}
