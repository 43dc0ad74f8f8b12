package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neohunter/internal/core/model"
)

type fakeNetwork struct {
	outcome model.Outcome
	panics  bool
}

func (f *fakeNetwork) Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome {
	if f.panics {
		panic("boom")
	}
	return f.outcome
}

type fakeStandalone struct{}

func (fakeStandalone) Execute(ctx context.Context) model.Outcome { return model.OutcomeSuccess }

const descriptorJSON = `[
  {"b_module": "scanning", "b_class": "NetworkScanner", "b_port": 0, "b_status": "network_scanner"},
  {"b_module": "ftp_connector", "b_class": "FTPBruteforce", "b_port": 21, "b_status": "brute_force_ftp"},
  {"b_module": "steal_files_ftp", "b_class": "StealFilesFTP", "b_port": 21, "b_status": "steal_files_ftp", "b_parent": "FTPBruteforce"},
  {"b_module": "vnc_connector", "b_class": "VNCBruteforce", "b_port": 5900},
  {"b_module": "log_standalone", "b_class": "LogStandalone", "b_port": 0},
  {"b_module": "nmap_vuln_scanner", "b_class": "NmapVulnScanner", "b_port": 0, "b_status": "vuln_scan"}
]`

func newTestRegistry() *Registry {
	r := NewRegistry()
	network := func(desc model.ActionDescriptor) (interface{}, error) {
		return &fakeNetwork{outcome: model.OutcomeSuccess}, nil
	}
	r.Register("FTPBruteforce", network)
	r.Register("StealFilesFTP", network)
	r.Register("NmapVulnScanner", network)
	r.Register("LogStandalone", func(desc model.ActionDescriptor) (interface{}, error) {
		return fakeStandalone{}, nil
	})
	return r
}

func TestRegistry_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	require.NoError(t, os.WriteFile(path, []byte(descriptorJSON), 0644))

	set, err := newTestRegistry().Load(path)
	require.NoError(t, err)

	require.Len(t, set.Roots, 1)
	assert.Equal(t, "FTPBruteforce", set.Roots[0].Name())
	require.Len(t, set.Children, 1)
	assert.Equal(t, "FTPBruteforce", set.Children[0].Parent())
	require.Len(t, set.Standalone, 1)
	require.NotNil(t, set.Vuln)
	require.NotNil(t, set.Scanner)

	// 未注册的 VNCBruteforce 被跳过，但列仍然保留
	assert.Nil(t, set.Find("VNCBruteforce"))
	assert.Equal(t, []string{"NetworkScanner", "FTPBruteforce", "StealFilesFTP", "VNCBruteforce", "LogStandalone", "NmapVulnScanner"}, set.Keys())
	assert.Len(t, set.ChildrenOf("FTPBruteforce"), 1)
	assert.Empty(t, set.ChildrenOf("SSHBruteforce"))
}

func TestRegistry_FactoryErrors(t *testing.T) {
	r := NewRegistry()
	r.Register("Broken", func(desc model.ActionDescriptor) (interface{}, error) {
		return nil, errors.New("missing dependency")
	})
	r.Register("WrongKind", func(desc model.ActionDescriptor) (interface{}, error) {
		return fakeStandalone{}, nil
	})

	set := r.Build([]model.ActionDescriptor{
		{Class: "Broken", Port: 22},
		{Class: "WrongKind", Port: 22},
		{Class: ""},
	})
	assert.Empty(t, set.All())

	_, err := r.Get("Missing")
	assert.True(t, errors.Is(err, ErrUnknownClass))
}

func TestAction_RunRecoversPanic(t *testing.T) {
	a := &Action{Descriptor: model.ActionDescriptor{Class: "SSHBruteforce", Port: 22}, Network: &fakeNetwork{panics: true}}
	assert.Equal(t, model.OutcomeFailed, a.Run(context.Background(), "10.0.0.5", model.NewTargetRecord("aa")))

	a.Network = &fakeNetwork{outcome: model.OutcomeSuccess}
	assert.Equal(t, model.OutcomeSuccess, a.Run(context.Background(), "10.0.0.5", model.NewTargetRecord("aa")))

	empty := &Action{Descriptor: model.ActionDescriptor{Class: "X"}}
	assert.Equal(t, model.OutcomeSkipped, empty.Run(context.Background(), "10.0.0.5", nil))
	assert.Equal(t, model.OutcomeSkipped, empty.RunStandalone(context.Background()))
}

func TestLoadDescriptors_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := LoadDescriptors(path)
	assert.Error(t, err)

	_, err = LoadDescriptors(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
