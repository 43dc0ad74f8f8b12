package vuln

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neohunter/internal/config"
)

const sampleOutput = `Starting Nmap 7.93
PORT   STATE SERVICE VERSION
22/tcp open  ssh     OpenSSH 7.4 (protocol 2.0)
| vulners:
|   cpe:/a:openbsd:openssh:7.4:
|       CVE-2018-15919  5.0  https://vulners.com/cve/CVE-2018-15919
|       CVE-2017-15906  5.0  https://vulners.com/cve/CVE-2017-15906
|_      EXPLOITPACK:98FE96309F9524B8C84C508837551A19  5.8  https://vulners.com/exploitpack *EXPLOIT*
80/tcp open  http    nginx
| http-vuln-cve2011-3192:
|   VULNERABLE:
|   Apache byterange filter DoS

Service detection performed.
`

func TestParseVulnerabilities(t *testing.T) {
	got := ParseVulnerabilities(sampleOutput)

	assert.Contains(t, got, "|       CVE-2018-15919  5.0  https://vulners.com/cve/CVE-2018-15919")
	assert.Contains(t, got, "|       CVE-2017-15906  5.0  https://vulners.com/cve/CVE-2017-15906")
	assert.Contains(t, got, "|   VULNERABLE:")
	assert.Contains(t, got, "|   Apache byterange filter DoS")
	for _, v := range got {
		assert.NotContains(t, v, "EXPLOITPACK", "closing |_ line must not be captured")
		assert.NotContains(t, v, "Service detection")
	}
	assert.Len(t, got, 4)
}

func TestParseVulnerabilities_NoFindings(t *testing.T) {
	assert.Empty(t, ParseVulnerabilities("22/tcp open ssh\nNmap done\n"))
}

func TestSummary_UpsertKeepsLast(t *testing.T) {
	s := NewSummary(filepath.Join(t.TempDir(), SummaryFileName))

	require.NoError(t, s.Upsert(SummaryRow{IP: "10.0.0.2", MAC: "aa:bb", Ports: "22", Vulnerabilities: []string{"CVE-1"}}))
	require.NoError(t, s.Upsert(SummaryRow{IP: "10.0.0.3", MAC: "cc:dd", Ports: "80", Vulnerabilities: []string{"CVE-2"}}))
	require.NoError(t, s.Upsert(SummaryRow{IP: "10.0.0.2", MAC: "aa:bb", Ports: "22,80", Vulnerabilities: []string{"CVE-1", "CVE-3"}}))

	rows, err := s.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "10.0.0.3", rows[0].IP)
	assert.Equal(t, "22,80", rows[1].Ports)
	assert.Equal(t, []string{"CVE-1", "CVE-3"}, rows[1].Vulnerabilities)
}

func TestSummary_CountDistinct(t *testing.T) {
	s := NewSummary(filepath.Join(t.TempDir(), SummaryFileName))
	require.NoError(t, s.Upsert(SummaryRow{IP: "10.0.0.2", MAC: "aa", Vulnerabilities: []string{"CVE-1", "CVE-2"}}))
	require.NoError(t, s.Upsert(SummaryRow{IP: "10.0.0.3", MAC: "bb", Vulnerabilities: []string{"CVE-2", "CVE-3"}}))
	require.NoError(t, s.Upsert(SummaryRow{IP: "10.0.0.4", MAC: "cc", Vulnerabilities: []string{"CVE-9"}}))

	n, err := s.CountDistinct(map[string]struct{}{"aa": {}, "bb": {}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountDistinct(map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScanner_Scan(t *testing.T) {
	dir := t.TempDir()
	var gotName string
	var gotArgs []string
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(sampleOutput), nil
	}
	s := NewScanner(&config.VulnConfig{Aggressivity: "-T4"}, dir, WithRunner(runner))

	report, err := s.Scan(context.Background(), Target{IP: "10.0.0.2", MAC: "aa:bb:cc:dd:ee:ff", Ports: []int{22, 80}})
	require.NoError(t, err)

	assert.Equal(t, "nmap", gotName)
	assert.Equal(t, []string{"-T4", "-sV", "--script", "vulners.nse", "-p", "22,80", "10.0.0.2"}, gotArgs)
	assert.Len(t, report.Vulnerabilities, 4)
	assert.Equal(t, filepath.Join(dir, "aabbccddeeff_10.0.0.2_vuln_scan.txt"), report.RawFile)

	raw, err := os.ReadFile(report.RawFile)
	require.NoError(t, err)
	assert.Equal(t, sampleOutput, string(raw))

	rows, err := s.Summary().Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "22,80", rows[0].Ports)
}

func TestScanner_ScanErrors(t *testing.T) {
	failing := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exec: \"nmap\": executable file not found in $PATH")
	}
	s := NewScanner(nil, t.TempDir(), WithRunner(failing))

	_, err := s.Scan(context.Background(), Target{IP: "10.0.0.2", MAC: "aa"})
	assert.ErrorIs(t, err, ErrNoPorts)

	_, err = s.Scan(context.Background(), Target{IP: "10.0.0.2", MAC: "aa", Ports: []int{22}})
	assert.Error(t, err)
}
