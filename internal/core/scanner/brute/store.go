package brute

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"neohunter/internal/core/model"
)

var crackedHeader = []string{"MAC Address", "IP Address", "Hostname", "User", "Password", "Port"}

// CredentialStore 单协议的凭据结果文件
// 只追加，写入时去重；每个 store 一把锁
type CredentialStore struct {
	mu          sync.Mutex
	path        string
	extraColumn string // Share / Database，空表示无附加列
}

// NewCredentialStore 创建凭据文件 (不存在时写入表头)
func NewCredentialStore(path, extraColumn string) (*CredentialStore, error) {
	s := &CredentialStore{path: path, extraColumn: extraColumn}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path 文件路径
func (s *CredentialStore) Path() string {
	return s.path
}

// Header 表头
func (s *CredentialStore) Header() []string {
	h := append([]string(nil), crackedHeader...)
	if s.extraColumn != "" {
		h = append(h, s.extraColumn)
	}
	return h
}

// Append 追加并去重，立即落盘
func (s *CredentialStore) Append(records ...model.CrackedRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}

	seen := make(map[string]int, len(existing))
	for i, r := range existing {
		seen[r.Key()] = i
	}
	for _, r := range records {
		if s.extraColumn == "" {
			r.Extra = ""
		}
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = len(existing)
		existing = append(existing, r)
	}
	return s.save(existing)
}

// Load 读取全部记录
func (s *CredentialStore) Load() ([]model.CrackedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ForIP 某个 IP 的全部凭据 (窃取类动作使用)
func (s *CredentialStore) ForIP(ip string) ([]model.CrackedRecord, error) {
	all, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []model.CrackedRecord
	for _, r := range all {
		if r.IP == ip {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *CredentialStore) load() ([]model.CrackedRecord, error) {
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
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	var out []model.CrackedRecord
	for i, row := range rows {
		if i == 0 || len(row) < len(crackedHeader) {
			continue
		}
		port, _ := strconv.Atoi(row[5])
		rec := model.CrackedRecord{MAC: row[0], IP: row[1], Hostname: row[2], User: row[3], Password: row[4], Port: port}
		if len(row) > len(crackedHeader) {
			rec.Extra = row[6]
		}
		out = append(out, rec)
	}
	return out, nil
}

// save 写同目录临时文件后替换，失败时清理临时文件
func (s *CredentialStore) save(records []model.CrackedRecord) (err error) {
	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(s.Header()); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	for _, r := range records {
		if err := w.Write(r.Row(s.extraColumn != "")); err != nil {
			return fmt.Errorf("write %s: %w", tmp, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
