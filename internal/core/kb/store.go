/**
 * 目标知识库
 * @author: sun977
 * @date: 2026.02.03
 * @description: netkb.csv 的读写入口。所有读-改-写都在同一把锁下完成，
 *               发现引擎、编排器、手动触发三方共享同一个 Store 实例。
 */

package kb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"neohunter/internal/core/model"
	"neohunter/internal/pkg/logger"
	"neohunter/internal/pkg/utils"
)

// 固定身份列
var identityColumns = []string{"MAC Address", "IPs", "Hostnames", "Alive", "Ports"}

// ErrNotFound 目标不存在
var ErrNotFound = errors.New("target not found")

// Store 知识库
type Store struct {
	path       string
	mu         sync.Mutex
	actionKeys []string // 已注册动作列 (注册顺序)
}

// Open 打开知识库，文件不存在时创建
// 启动阶段唯一的致命错误来源
func Open(path string, actionKeys []string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("netkb path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create netkb dir: %w", err)
	}

	s := &Store{path: path, actionKeys: dedupKeys(actionKeys)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to open netkb %s: %w", path, err)
	}
	return s, nil
}

// Path 知识库文件路径
func (s *Store) Path() string {
	return s.path
}

// ActionKeys 当前表头中的动作列
func (s *Store) ActionKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, keys, err := s.load()
	if err != nil {
		return slices.Clone(s.actionKeys)
	}
	return keys
}

// RegisterActions 注册动作列，下次读取时并入表头
func (s *Store) RegisterActions(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionKeys = dedupKeys(append(s.actionKeys, keys...))
}

// Read 读取全部目标 (已排序)
// 读取失败只记录日志并返回空结果，调用方下一轮重试
func (s *Store) Read() []*model.TargetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, _, err := s.load()
	if err != nil {
		logger.Errorf("Error reading netkb %s: %v", s.path, err)
		return nil
	}
	return records
}

// Get 按 MAC 查询
func (s *Store) Get(mac string) (*model.TargetRecord, error) {
	for _, r := range s.Read() {
		if r.MAC == mac {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", mac, ErrNotFound)
}

// FindByIP 按 IP 查询
func (s *Store) FindByIP(ip string) (*model.TargetRecord, error) {
	for _, r := range s.Read() {
		if r.HasIP(ip) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ip, ErrNotFound)
}

// Update 在锁内执行读-改-写
// fn 返回的记录集合会整体替换文件内容
func (s *Store) Update(fn func(records []*model.TargetRecord) []*model.TargetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, keys, err := s.load()
	if err != nil {
		logger.Errorf("Error reading netkb %s: %v", s.path, err)
		return err
	}

	updated := fn(records)
	for _, r := range updated {
		for k := range r.Actions {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}

	if err := s.save(updated, keys); err != nil {
		logger.Errorf("Error writing netkb %s: %v", s.path, err)
		return err
	}
	return nil
}

// Write 按 MAC 合并写入
// 只有非空字段会覆盖已有值，已设置的动作单元格不会被空值清掉
func (s *Store) Write(records []*model.TargetRecord) error {
	return s.Update(func(existing []*model.TargetRecord) []*model.TargetRecord {
		index := make(map[string]*model.TargetRecord, len(existing))
		for _, r := range existing {
			index[r.MAC] = r
		}

		for _, in := range records {
			if in == nil || in.MAC == "" {
				continue
			}
			cur, ok := index[in.MAC]
			if !ok {
				c := in.Clone()
				index[in.MAC] = c
				existing = append(existing, c)
				continue
			}
			if len(in.IPs) > 0 {
				cur.IPs = slices.Clone(in.IPs)
			}
			if len(in.Hostnames) > 0 {
				cur.Hostnames = slices.Clone(in.Hostnames)
			}
			if len(in.Ports) > 0 {
				cur.Ports = slices.Clone(in.Ports)
			}
			cur.Alive = in.Alive
			for k, v := range in.Actions {
				if v.IsSet() {
					cur.SetAction(k, v)
				}
			}
		}
		return existing
	})
}

// RecordOutcome 写回一次动作结果
// 目标不存在时 (例如刚被对账删除) 返回 ErrNotFound
func (s *Store) RecordOutcome(mac, actionKey string, rec model.ActionRecord) error {
	if !rec.IsSet() {
		return nil
	}
	var found bool
	err := s.Update(func(records []*model.TargetRecord) []*model.TargetRecord {
		for _, r := range records {
			if r.MAC == mac {
				r.SetAction(actionKey, rec)
				found = true
				break
			}
		}
		return records
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", mac, ErrNotFound)
	}
	return nil
}

// EnsureStandalone 确保独立动作伪目标存在
func (s *Store) EnsureStandalone() error {
	return s.Update(func(records []*model.TargetRecord) []*model.TargetRecord {
		for _, r := range records {
			if r.IsStandalone() {
				return records
			}
		}
		return append(records, model.NewStandaloneRecord())
	})
}

// load 读取文件；缺失或表头缺少已注册动作列时重建表头
// 调用方必须持有 s.mu
func (s *Store) load() ([]*model.TargetRecord, []string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		keys := slices.Clone(s.actionKeys)
		if err := s.save(nil, keys); err != nil {
			return nil, nil, err
		}
		return nil, keys, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		keys := slices.Clone(s.actionKeys)
		return nil, keys, s.save(nil, keys)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invalid netkb header: %w", err)
	}
	if len(header) < len(identityColumns) || header[0] != identityColumns[0] {
		return nil, nil, fmt.Errorf("invalid netkb header: %v", header)
	}

	fileKeys := header[len(identityColumns):]
	keys := slices.Clone(fileKeys)
	missing := false
	for _, k := range s.actionKeys {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
			missing = true
		}
	}

	var records []*model.TargetRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid netkb row: %w", err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		records = append(records, parseRow(row, fileKeys))
	}

	if missing {
		if err := s.save(records, keys); err != nil {
			return nil, nil, err
		}
		logger.Infof("netkb header extended with %d new action columns", len(keys)-len(fileKeys))
	}

	return records, keys, nil
}

// save 排序后原子写入 (临时文件 + rename)
func (s *Store) save(records []*model.TargetRecord, keys []string) error {
	sortRecords(records)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".netkb-*.csv")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	table := model.TargetTable{ActionKeys: keys, Targets: records}
	w := csv.NewWriter(tmp)
	if err := w.Write(table.Headers()); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(table.Rows()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func parseRow(row []string, keys []string) *model.TargetRecord {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	r := model.NewTargetRecord(cell(0))
	r.IPs = model.MergeIPs(nil, model.SplitCell(cell(1))...)
	r.Hostnames = model.MergeStrings(nil, model.SplitCell(cell(2))...)
	r.Alive = cell(3) == "1"
	r.Ports = model.SplitPorts(cell(4))
	for i, k := range keys {
		if rec := model.ParseActionRecord(cell(len(identityColumns) + i)); rec.IsSet() {
			r.Actions[k] = rec
		}
	}
	return r
}

// sortRecords 按首个 IP 的数值排序，非 IP 伪目标排在最前
func sortRecords(records []*model.TargetRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if c := utils.CompareIP(records[i].PrimaryIP(), records[j].PrimaryIP()); c != 0 {
			return c < 0
		}
		return records[i].MAC < records[j].MAC
	})
}

func dedupKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}
