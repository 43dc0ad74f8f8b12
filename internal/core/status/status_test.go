package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBehaviorFor_Fallback(t *testing.T) {
	assert.Equal(t, "IDLE", BehaviorFor(KindIdle).Label)
	assert.Equal(t, Fallback, BehaviorFor(KindUnknown))
	assert.Equal(t, Fallback, BehaviorFor(Kind(42)))
}

func TestKindForAction(t *testing.T) {
	assert.Equal(t, KindBruteforce, KindForAction("SSHBruteforce"))
	assert.Equal(t, KindSteal, KindForAction("StealFilesFTP"))
	assert.Equal(t, KindBruteforce, KindForAction("RDPBruteforce"))
	assert.Equal(t, KindSteal, KindForAction("StealFilesTelnet"))
	assert.Equal(t, KindUnknown, KindForAction("SomethingNew"))
}

func TestBoard_StatusAndCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livestatus.csv")
	b := NewBoard(path)
	assert.Equal(t, KindIdle, b.Snapshot().Kind)

	b.SetAction("FTPBruteforce", "10.0.0.5")
	snap := b.Snapshot()
	assert.Equal(t, KindBruteforce, snap.Kind)
	assert.Equal(t, "FTPBruteforce", snap.Action)
	assert.Equal(t, "10.0.0.5", snap.Target)

	b.SetAction("Unregistered", "10.0.0.6")
	assert.Equal(t, Fallback, b.Snapshot().Behavior)

	require.NoError(t, b.SetHostCounters(7, 3, 5))
	require.NoError(t, b.SetVulnerabilities(2))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Total Open Ports,Alive Hosts Count,All Known Hosts Count,Vulnerabilities Count\n7,3,5,2\n", string(content))

	restored := NewBoard(path)
	require.NoError(t, restored.Load())
	assert.Equal(t, Counters{OpenPorts: 7, AliveHosts: 3, KnownHosts: 5, Vulnerabilities: 2}, restored.Snapshot().Counters)

	b.SetIdle()
	assert.Equal(t, KindIdle, b.Snapshot().Kind)
	assert.Empty(t, b.Snapshot().Action)
}

func TestBoard_NoPath(t *testing.T) {
	b := NewBoard("")
	assert.NoError(t, b.SetHostCounters(1, 1, 1))
	assert.NoError(t, b.Load())
}
