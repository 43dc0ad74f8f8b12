package vuln

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var summaryHeader = []string{"IP", "Hostname", "MAC Address", "Port", "Vulnerabilities"}

// SummaryRow 漏洞摘要的一行
type SummaryRow struct {
	IP              string
	Hostname        string
	MAC             string
	Ports           string
	Vulnerabilities []string
}

// SummaryRows 实现 TabularData 接口
type SummaryRows []SummaryRow

func (rs SummaryRows) Headers() []string {
	return summaryHeader
}

func (rs SummaryRows) Rows() [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{r.IP, r.Hostname, r.MAC, r.Ports, strings.Join(r.Vulnerabilities, Separator)})
	}
	return out
}

// Summary vulnerability_summary.csv，按 IP+MAC 去重保留最新一行
type Summary struct {
	mu   sync.Mutex
	path string
}

// NewSummary 打开摘要文件
func NewSummary(path string) *Summary {
	return &Summary{path: path}
}

// Path 文件路径
func (s *Summary) Path() string {
	return s.path
}

// Upsert 写入一行，覆盖相同 IP+MAC 的旧行
func (s *Summary) Upsert(row SummaryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load()
	if err != nil {
		return err
	}
	kept := rows[:0]
	for _, r := range rows {
		if r.IP == row.IP && r.MAC == row.MAC {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, row)
	return s.save(kept)
}

// Rows 读取全部行
func (s *Summary) Rows() (SummaryRows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// CountDistinct 统计存活 MAC 上的不同漏洞条目数
func (s *Summary) CountDistinct(aliveMACs map[string]struct{}) (int, error) {
	rows, err := s.Rows()
	if err != nil {
		return 0, err
	}
	distinct := make(map[string]struct{})
	for _, r := range rows {
		if _, ok := aliveMACs[r.MAC]; !ok {
			continue
		}
		for _, v := range r.Vulnerabilities {
			distinct[v] = struct{}{}
		}
	}
	return len(distinct), nil
}

func (s *Summary) load() (SummaryRows, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	var rows SummaryRows
	for i, rec := range records {
		if i == 0 || len(rec) < len(summaryHeader) {
			continue
		}
		rows = append(rows, SummaryRow{
			IP:              rec[0],
			Hostname:        rec[1],
			MAC:             rec[2],
			Ports:           rec[3],
			Vulnerabilities: SplitCell(rec[4]),
		})
	}
	return rows, nil
}

func (s *Summary) save(rows SummaryRows) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write(rows.Headers())
	w.WriteAll(rows.Rows())
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
