package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neohunter/internal/config"
	"neohunter/internal/core/discovery"
	"neohunter/internal/core/kb"
	"neohunter/internal/core/lib/network/qos"
	"neohunter/internal/core/model"
	"neohunter/internal/core/registry"
	"neohunter/internal/core/status"
	"neohunter/internal/pkg/logger"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// callLog 记录执行顺序 "Class@ip"
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeAction struct {
	class   string
	log     *callLog
	outcome model.Outcome
}

func (f *fakeAction) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	f.log.add(fmt.Sprintf("%s@%s", f.class, ip))
	return f.outcome
}

type fakeStandalone struct {
	class   string
	log     *callLog
	outcome model.Outcome
}

func (f *fakeStandalone) Execute(ctx context.Context) model.Outcome {
	f.log.add(f.class)
	return f.outcome
}

func networkAction(class string, port int, parent string, log *callLog, outcome model.Outcome) *registry.Action {
	return &registry.Action{
		Descriptor: model.ActionDescriptor{Class: class, Port: port, Parent: parent},
		Network:    &fakeAction{class: class, log: log, outcome: outcome},
	}
}

func host(mac, ip string, ports ...int) *model.TargetRecord {
	r := model.NewTargetRecord(mac)
	r.AddIP(ip)
	r.Alive = true
	r.AddPorts(ports...)
	return r
}

func openStore(t *testing.T, keys []string, records ...*model.TargetRecord) *kb.Store {
	t.Helper()
	store, err := kb.Open(filepath.Join(t.TempDir(), "netkb.csv"), keys)
	require.NoError(t, err)
	if len(records) > 0 {
		require.NoError(t, store.Write(records))
	}
	return store
}

func orchConfig() *config.OrchestratorConfig {
	return &config.OrchestratorConfig{
		ScanVulnInterval:  900 * time.Second,
		FailedRetryDelay:  600 * time.Second,
		SuccessRetryDelay: 900 * time.Second,
		ActionConcurrency: 10,
	}
}

// fakeDiscoverer 每次扫描把 hosts 写入知识库
type fakeDiscoverer struct {
	store *kb.Store
	hosts []*model.TargetRecord
	scans int
}

func (d *fakeDiscoverer) Scan(ctx context.Context) (*discovery.Result, error) {
	d.scans++
	if len(d.hosts) > 0 {
		if err := d.store.Write(d.hosts); err != nil {
			return nil, err
		}
	}
	return &discovery.Result{}, nil
}

func TestPolicy_Allows(t *testing.T) {
	p := Policy{RetrySuccess: true, SuccessRetryDelay: 900 * time.Second, FailedRetryDelay: 600 * time.Second}
	success := model.NewActionRecord(model.OutcomeSuccess, t0)
	failed := model.NewActionRecord(model.OutcomeFailed, t0)

	assert.True(t, p.Allows(model.ActionRecord{}, t0))
	assert.False(t, p.Allows(success, t0.Add(500*time.Second)))
	assert.True(t, p.Allows(success, t0.Add(901*time.Second)))
	assert.False(t, p.Allows(failed, t0.Add(599*time.Second)))
	assert.True(t, p.Allows(failed, t0.Add(600*time.Second)))

	p.RetrySuccess = false
	assert.False(t, p.Allows(success, t0.Add(24*time.Hour)))
	assert.Equal(t, time.Duration(-1), p.RetryIn(success, t0))
	assert.Equal(t, 100*time.Second, p.RetryIn(failed, t0.Add(500*time.Second)))
	assert.Equal(t, time.Duration(0), p.RetryIn(failed, t0.Add(time.Hour)))
}

func TestOrchestrator_SuccessRetryBackoff(t *testing.T) {
	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeSuccess)
	store := openStore(t, []string{"SSHBruteforce"}, host("aa:aa:aa:aa:aa:01", "10.0.0.5", 22))
	clock := &fakeClock{now: t0}

	cfg := orchConfig()
	cfg.RetrySuccessActions = true
	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh}}, Clock: clock}, cfg, nil)

	o.Cycle(context.Background())
	require.Len(t, log.all(), 1)

	clock.Set(t0.Add(500 * time.Second))
	o.Cycle(context.Background())
	assert.Len(t, log.all(), 1, "not re-attempted within success retry delay")

	clock.Set(t0.Add(901 * time.Second))
	o.Cycle(context.Background())
	assert.Len(t, log.all(), 2, "re-attempted after success retry delay")
}

func TestOrchestrator_EndToEndPort22Failure(t *testing.T) {
	const mac = "AA:BB:CC:DD:EE:FF"
	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeFailed)
	store := openStore(t, []string{"SSHBruteforce"})
	disc := &fakeDiscoverer{store: store, hosts: []*model.TargetRecord{host(mac, "10.0.0.5", 22, 80)}}
	clock := &fakeClock{now: t0}

	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh}}, Discovery: disc, Clock: clock}, orchConfig(), nil)

	// 空知识库 -> 空闲路径触发发现 -> 对 22 端口执行并失败
	report := o.Cycle(context.Background())
	assert.True(t, report.Idle)
	assert.Equal(t, 1, disc.scans)
	assert.Equal(t, []string{"SSHBruteforce@10.0.0.5"}, log.all())

	rec, err := store.Get(mac)
	require.NoError(t, err)
	cell := rec.Action("SSHBruteforce")
	assert.Equal(t, model.OutcomeFailed, cell.Outcome)
	assert.True(t, t0.Equal(cell.At))
	assert.Equal(t, "failed_"+t0.Format(model.CellTimeLayout), cell.String())

	// 退避期内跳过
	clock.Set(t0.Add(300 * time.Second))
	report = o.Cycle(context.Background())
	assert.Equal(t, 0, report.Executed)
	assert.Len(t, log.all(), 1)

	// 退避期后重试
	clock.Set(t0.Add(601 * time.Second))
	report = o.Cycle(context.Background())
	assert.Equal(t, 1, report.Executed)
	assert.Len(t, log.all(), 2)
}

func TestOrchestrator_ChildGating(t *testing.T) {
	log := &callLog{}
	ftp := networkAction("FTPBruteforce", 21, "", log, model.OutcomeFailed)
	steal := networkAction("StealFilesFTP", 21, "FTPBruteforce", log, model.OutcomeSuccess)
	orphan := networkAction("StealFilesSSH", 22, "SSHBruteforce", log, model.OutcomeSuccess)

	store := openStore(t, []string{"FTPBruteforce", "StealFilesFTP", "StealFilesSSH"},
		host("aa:aa:aa:aa:aa:01", "10.0.0.2", 21, 22),
		host("aa:aa:aa:aa:aa:02", "10.0.0.3", 21, 22),
	)
	set := &registry.Set{
		Roots:    []*registry.Action{ftp},
		Children: []*registry.Action{steal, orphan},
	}
	o := New(Deps{Store: store, Actions: set, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	o.Cycle(context.Background())

	for _, c := range log.all() {
		assert.NotContains(t, c, "StealFiles", "child must not run while parent failed or never ran")
	}
	assert.Len(t, log.all(), 2)
}

func TestOrchestrator_ChildSweepAfterPriorSuccess(t *testing.T) {
	log := &callLog{}
	ftp := networkAction("FTPBruteforce", 21, "", log, model.OutcomeSuccess)
	steal := networkAction("StealFilesFTP", 21, "FTPBruteforce", log, model.OutcomeSuccess)

	h := host("aa:aa:aa:aa:aa:01", "10.0.0.2", 21)
	h.SetAction("FTPBruteforce", model.NewActionRecord(model.OutcomeSuccess, t0.Add(-time.Hour)))
	store := openStore(t, []string{"FTPBruteforce", "StealFilesFTP"}, h)

	set := &registry.Set{Roots: []*registry.Action{ftp}, Children: []*registry.Action{steal}}
	o := New(Deps{Store: store, Actions: set, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	report := o.Cycle(context.Background())
	assert.False(t, report.Idle)
	assert.Equal(t, []string{"StealFilesFTP@10.0.0.2"}, log.all())
}

func TestOrchestrator_ChildSweepIncludesOfflineTargets(t *testing.T) {
	log := &callLog{}
	ftp := networkAction("FTPBruteforce", 21, "", log, model.OutcomeSuccess)
	steal := networkAction("StealFilesFTP", 21, "FTPBruteforce", log, model.OutcomeSuccess)

	h := host("aa:aa:aa:aa:aa:01", "10.0.0.2", 21)
	h.Alive = false
	h.SetAction("FTPBruteforce", model.NewActionRecord(model.OutcomeSuccess, t0.Add(-time.Hour)))
	store := openStore(t, []string{"FTPBruteforce", "StealFilesFTP"}, h)

	set := &registry.Set{Roots: []*registry.Action{ftp}, Children: []*registry.Action{steal}}
	o := New(Deps{Store: store, Actions: set, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	o.Cycle(context.Background())
	// 根动作要求在线，子动作只看父动作
	assert.Equal(t, []string{"StealFilesFTP@10.0.0.2"}, log.all())
}

func TestOrchestrator_BackoffSkipLogsRetryDelay(t *testing.T) {
	lm := logger.InitDiscard()
	lm.GetLogger().SetLevel(logrus.DebugLevel)
	hook := logtest.NewLocal(lm.GetLogger())
	t.Cleanup(func() { logger.InitDiscard() })

	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeSuccess)
	h := host("aa:aa:aa:aa:aa:01", "10.0.0.5", 22)
	h.SetAction("SSHBruteforce", model.NewActionRecord(model.OutcomeFailed, t0))
	store := openStore(t, []string{"SSHBruteforce"}, h)

	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh}}, Clock: &fakeClock{now: t0.Add(500 * time.Second)}}, orchConfig(), nil)
	o.Cycle(context.Background())
	assert.Empty(t, log.all())

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel && e.Message == "Skipping SSHBruteforce for 10.0.0.5, last failed, retry possible in 1m40s" {
			found = true
		}
	}
	assert.True(t, found, "expected a retry delay message")
}

func TestOrchestrator_FTPChainDepthFirst(t *testing.T) {
	log := &callLog{}
	ftp := networkAction("FTPBruteforce", 21, "", log, model.OutcomeSuccess)
	steal := networkAction("StealFilesFTP", 21, "FTPBruteforce", log, model.OutcomeSuccess)

	store := openStore(t, []string{"FTPBruteforce", "StealFilesFTP"},
		host("aa:aa:aa:aa:aa:01", "10.0.0.2", 21),
		host("aa:aa:aa:aa:aa:02", "10.0.0.3", 21),
	)
	set := &registry.Set{Roots: []*registry.Action{ftp}, Children: []*registry.Action{steal}}
	o := New(Deps{Store: store, Actions: set, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	report := o.Cycle(context.Background())
	assert.Equal(t, []string{
		"FTPBruteforce@10.0.0.2",
		"StealFilesFTP@10.0.0.2",
		"FTPBruteforce@10.0.0.3",
		"StealFilesFTP@10.0.0.3",
	}, log.all())
	assert.Equal(t, 4, report.Succeeded)

	rec, err := store.Get("aa:aa:aa:aa:aa:02")
	require.NoError(t, err)
	assert.True(t, rec.Action("StealFilesFTP").Succeeded())
}

func TestOrchestrator_FirstRootSuccessMovesToNextTarget(t *testing.T) {
	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeSuccess)
	ftp := networkAction("FTPBruteforce", 21, "", log, model.OutcomeSuccess)

	store := openStore(t, []string{"SSHBruteforce", "FTPBruteforce"},
		host("aa:aa:aa:aa:aa:01", "10.0.0.2", 21, 22),
		host("aa:aa:aa:aa:aa:02", "10.0.0.3", 21),
	)
	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh, ftp}}, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	o.Cycle(context.Background())
	assert.Equal(t, []string{"SSHBruteforce@10.0.0.2", "FTPBruteforce@10.0.0.3"}, log.all())

	// 下一轮继续未完成的根动作
	o.Cycle(context.Background())
	assert.Equal(t, "FTPBruteforce@10.0.0.2", log.all()[2])
}

func TestOrchestrator_OfflineTargetsSkipped(t *testing.T) {
	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeSuccess)
	offline := host("aa:aa:aa:aa:aa:01", "10.0.0.2", 22)
	offline.Alive = false
	store := openStore(t, []string{"SSHBruteforce"}, offline, host("aa:aa:aa:aa:aa:02", "10.0.0.3", 80))

	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh}}, Clock: &fakeClock{now: t0}}, orchConfig(), nil)
	report := o.Cycle(context.Background())
	assert.True(t, report.Idle)
	assert.Empty(t, log.all())
}

func TestOrchestrator_StandaloneStopsAtFirstSuccess(t *testing.T) {
	log := &callLog{}
	set := &registry.Set{Standalone: []*registry.Action{
		{Descriptor: model.ActionDescriptor{Class: "FailingStandalone"}, Standalone: &fakeStandalone{class: "FailingStandalone", log: log, outcome: model.OutcomeFailed}},
		{Descriptor: model.ActionDescriptor{Class: "LogStandalone"}, Standalone: &fakeStandalone{class: "LogStandalone", log: log, outcome: model.OutcomeSuccess}},
		{Descriptor: model.ActionDescriptor{Class: "NeverReached"}, Standalone: &fakeStandalone{class: "NeverReached", log: log, outcome: model.OutcomeSuccess}},
	}}
	store := openStore(t, []string{"FailingStandalone", "LogStandalone", "NeverReached"})
	o := New(Deps{Store: store, Actions: set, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	report := o.Cycle(context.Background())
	assert.True(t, report.Idle)
	assert.Equal(t, []string{"FailingStandalone", "LogStandalone"}, log.all())

	rec, err := store.Get(model.StandaloneMAC)
	require.NoError(t, err)
	assert.True(t, rec.Action("LogStandalone").Succeeded())
	assert.Equal(t, model.OutcomeFailed, rec.Action("FailingStandalone").Outcome)
}

func TestOrchestrator_VulnPassInterval(t *testing.T) {
	log := &callLog{}
	vuln := networkAction(registry.ClassVulnScanner, 0, "", log, model.OutcomeSuccess)
	store := openStore(t, []string{registry.ClassVulnScanner},
		host("aa:aa:aa:aa:aa:01", "10.0.0.2", 22),
		host("aa:aa:aa:aa:aa:02", "10.0.0.3", 80),
	)
	clock := &fakeClock{now: t0}
	cfg := orchConfig()
	cfg.RetrySuccessActions = true
	cfg.SuccessRetryDelay = time.Second

	o := New(Deps{Store: store, Actions: &registry.Set{Vuln: vuln}, Clock: clock}, cfg, &config.VulnConfig{Enabled: true})

	o.Cycle(context.Background())
	assert.Len(t, log.all(), 2)

	// 间隔未到
	clock.Set(t0.Add(10 * time.Minute))
	o.Cycle(context.Background())
	assert.Len(t, log.all(), 2)

	clock.Set(t0.Add(16 * time.Minute))
	o.Cycle(context.Background())
	assert.Len(t, log.all(), 4)

	rec, err := store.Get("aa:aa:aa:aa:aa:01")
	require.NoError(t, err)
	assert.True(t, rec.Action(registry.ClassVulnScanner).Succeeded())

	// 关闭后不再扫描
	o.UpdateConfig(cfg, &config.VulnConfig{Enabled: false})
	clock.Set(t0.Add(time.Hour))
	o.Cycle(context.Background())
	assert.Len(t, log.all(), 4)
}

func TestOrchestrator_TriggerBypassesBackoff(t *testing.T) {
	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeSuccess)
	h := host("aa:aa:aa:aa:aa:01", "10.0.0.5", 22)
	h.SetAction("SSHBruteforce", model.NewActionRecord(model.OutcomeSuccess, t0))
	store := openStore(t, []string{"SSHBruteforce"}, h)

	clock := &fakeClock{now: t0.Add(time.Minute)}
	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh}}, Clock: clock}, orchConfig(), nil)
	c := NewController(o)

	res, err := c.Trigger(context.Background(), "SSHBruteforce", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Outcome)
	assert.True(t, t0.Add(time.Minute).Equal(res.At))
	assert.NotEmpty(t, res.ID)
	assert.Len(t, log.all(), 1)

	rec, err := store.Get("aa:aa:aa:aa:aa:01")
	require.NoError(t, err)
	assert.True(t, t0.Add(time.Minute).Equal(rec.Action("SSHBruteforce").At))

	_, err = c.Trigger(context.Background(), "Missing", "10.0.0.5")
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = c.Trigger(context.Background(), "SSHBruteforce", "10.9.9.9")
	assert.True(t, errors.Is(err, kb.ErrNotFound))
}

func TestOrchestrator_SemaphoreBoundsExecution(t *testing.T) {
	log := &callLog{}
	ssh := networkAction("SSHBruteforce", 22, "", log, model.OutcomeSuccess)
	store := openStore(t, []string{"SSHBruteforce"}, host("aa:aa:aa:aa:aa:01", "10.0.0.5", 22))
	limiter := qos.NewLimiter("actions", 1)
	o := New(Deps{Store: store, Actions: &registry.Set{Roots: []*registry.Action{ssh}}, Limiter: limiter, Clock: &fakeClock{now: t0}}, orchConfig(), nil)

	require.NoError(t, limiter.Acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := o.Trigger(ctx, "SSHBruteforce", "10.0.0.5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, log.all())

	limiter.Release()
	_, err = o.Trigger(context.Background(), "SSHBruteforce", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Peak())
}

func TestController_StartStop(t *testing.T) {
	store := openStore(t, nil)
	cfg := orchConfig()
	cfg.ScanInterval = 10 * time.Millisecond
	board := status.NewBoard("")
	disc := &fakeDiscoverer{store: store}
	o := New(Deps{Store: store, Discovery: disc, Board: board}, cfg, nil)
	c := NewController(o)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Running())
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	time.Sleep(50 * time.Millisecond)
	c.Stop()
	assert.False(t, c.Running())
	assert.Equal(t, status.KindIdle, board.Snapshot().Kind)

	// 停止后可以再次启动
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
	assert.False(t, c.Running())
}
