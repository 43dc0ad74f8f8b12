/**
 * 动作注册表
 * @author: sun977
 * @date: 2026.02.06
 * @description: 读取 actions.json，按类名查工厂表实例化动作，划分为根动作、子动作、独立动作三组。
 *               缺失工厂或工厂报错的描述只记录日志并跳过，不影响其他动作。
 */
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"neohunter/internal/core/model"
	"neohunter/internal/pkg/logger"
)

// 保留动作类名，由编排器直接驱动
const (
	ClassNetworkScanner = "NetworkScanner"
	ClassVulnScanner    = "NmapVulnScanner"
)

var (
	ErrUnknownClass   = errors.New("no factory registered for action class")
	ErrWrongKind      = errors.New("action does not match descriptor port")
	ErrNotNetworkable = errors.New("action cannot target a host")
)

// Registry 类名 -> 工厂
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register 注册一个工厂
func (r *Registry) Register(class string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[class] = f
}

// Get 获取指定类名的工厂
func (r *Registry) Get(class string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.factories[class]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
}

// LoadDescriptors 读取描述文件
func LoadDescriptors(path string) ([]model.ActionDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action descriptors: %w", err)
	}
	var descs []model.ActionDescriptor
	if err := json.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("parse action descriptors %s: %w", path, err)
	}
	return descs, nil
}

// Load 读取描述文件并实例化
func (r *Registry) Load(path string) (*Set, error) {
	descs, err := LoadDescriptors(path)
	if err != nil {
		return nil, err
	}
	return r.Build(descs), nil
}

// Build 按注册顺序实例化动作
func (r *Registry) Build(descs []model.ActionDescriptor) *Set {
	set := &Set{}
	for _, desc := range descs {
		if desc.Class == "" {
			logger.Warnf("Skipping action descriptor without class (module=%s)", desc.Module)
			continue
		}
		set.Descriptors = append(set.Descriptors, desc)

		if desc.Class == ClassNetworkScanner {
			d := desc
			set.Scanner = &d
			continue
		}

		action, err := r.instantiate(desc)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"module": desc.Module,
				"class":  desc.Class,
				"error":  err.Error(),
			}).Error("Failed to load action, skipping")
			continue
		}

		switch {
		case desc.Class == ClassVulnScanner:
			set.Vuln = action
		case action.Standalone != nil:
			set.Standalone = append(set.Standalone, action)
		case desc.IsChild():
			set.Children = append(set.Children, action)
		default:
			set.Roots = append(set.Roots, action)
		}
	}

	logger.Infof("Loaded %d root, %d child, %d standalone actions", len(set.Roots), len(set.Children), len(set.Standalone))
	return set
}

func (r *Registry) instantiate(desc model.ActionDescriptor) (*Action, error) {
	f, err := r.Get(desc.Class)
	if err != nil {
		return nil, err
	}
	inst, err := f(desc)
	if err != nil {
		return nil, err
	}

	action := &Action{Descriptor: desc}
	switch a := inst.(type) {
	case NetworkAction:
		if desc.IsStandalone() && desc.Class != ClassVulnScanner {
			return nil, ErrWrongKind
		}
		action.Network = a
	case StandaloneAction:
		if !desc.IsStandalone() {
			return nil, ErrNotNetworkable
		}
		action.Standalone = a
	default:
		return nil, fmt.Errorf("factory for %s returned %T", desc.Class, inst)
	}
	return action, nil
}

// Action 实例化后的动作
type Action struct {
	Descriptor model.ActionDescriptor
	Network    NetworkAction
	Standalone StandaloneAction
}

// Name 类名
func (a *Action) Name() string {
	return a.Descriptor.Class
}

// Key 知识库列名
func (a *Action) Key() string {
	return a.Descriptor.Key()
}

// Port 目标端口
func (a *Action) Port() int {
	return a.Descriptor.Port
}

// Parent 父动作类名
func (a *Action) Parent() string {
	return a.Descriptor.Parent
}

// Run 执行网络动作，动作内部 panic 视为失败
func (a *Action) Run(ctx context.Context, ip string, record *model.TargetRecord) (outcome model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Action %s panicked on %s: %v", a.Name(), ip, r)
			outcome = model.OutcomeFailed
		}
	}()
	if a.Network == nil {
		return model.OutcomeSkipped
	}
	return a.Network.Execute(ctx, ip, a.Port(), record, a.Key())
}

// RunStandalone 执行独立动作
func (a *Action) RunStandalone(ctx context.Context) (outcome model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Standalone action %s panicked: %v", a.Name(), r)
			outcome = model.OutcomeFailed
		}
	}()
	if a.Standalone == nil {
		return model.OutcomeSkipped
	}
	return a.Standalone.Execute(ctx)
}

// Set 一次加载得到的动作集合
type Set struct {
	Roots       []*Action
	Children    []*Action
	Standalone  []*Action
	Vuln        *Action
	Scanner     *model.ActionDescriptor
	Descriptors []model.ActionDescriptor
}

// Keys 知识库需要的全部动作列 (描述文件顺序)
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.Descriptors)+2)
	seen := make(map[string]struct{})
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, d := range s.Descriptors {
		add(d.Key())
	}
	if s.Vuln != nil {
		add(s.Vuln.Key())
	}
	return keys
}

// ChildrenOf 父动作为 class 的子动作 (注册顺序)
func (s *Set) ChildrenOf(class string) []*Action {
	var out []*Action
	for _, c := range s.Children {
		if c.Parent() == class {
			out = append(out, c)
		}
	}
	return out
}

// Find 按类名查找网络动作
func (s *Set) Find(class string) *Action {
	for _, group := range [][]*Action{s.Roots, s.Children} {
		for _, a := range group {
			if a.Name() == class {
				return a
			}
		}
	}
	if s.Vuln != nil && s.Vuln.Name() == class {
		return s.Vuln
	}
	return nil
}

// All 全部已实例化动作
func (s *Set) All() []*Action {
	out := make([]*Action, 0, len(s.Roots)+len(s.Children)+len(s.Standalone)+1)
	out = append(out, s.Roots...)
	out = append(out, s.Children...)
	out = append(out, s.Standalone...)
	if s.Vuln != nil {
		out = append(out, s.Vuln)
	}
	return out
}
