package reporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CsvReporter 将结果一次性写入 CSV 文件
type CsvReporter struct {
	FilePath string
}

func NewCsvReporter(filePath string) *CsvReporter {
	return &CsvReporter{FilePath: filePath}
}

func (r *CsvReporter) Report(data TabularData) error {
	return SaveCsv(r.FilePath, data)
}

// SaveCsv 覆盖写入 CSV (表头 + 全部行)
func SaveCsv(path string, data TabularData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create csv dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(data.Headers()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := w.WriteAll(data.Rows()); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// PruneOldest 按修改时间保留目录下最新的 keep 个文件，返回删除数量
func PruneOldest(dir string, keep int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type fileInfo struct {
		path    string
		modUnix int64
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, e.Name()), modUnix: info.ModTime().UnixNano()})
	}
	if keep < 0 {
		keep = 0
	}
	if len(files) <= keep {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modUnix < files[j].modUnix })
	removed := 0
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f.path); err == nil {
			removed++
		}
	}
	return removed, nil
}
