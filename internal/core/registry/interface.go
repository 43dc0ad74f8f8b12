package registry

import (
	"context"

	"neohunter/internal/core/model"
)

// NetworkAction 针对网络目标执行的动作
type NetworkAction interface {
	// Execute 对 ip:port 执行动作
	// record: 目标在知识库中的当前快照 (只读)
	// key: 动作在知识库中的列名
	Execute(ctx context.Context, ip string, port int, record *model.TargetRecord, key string) model.Outcome
}

// StandaloneAction 不针对网络目标的动作 (b_port == 0)
type StandaloneAction interface {
	Execute(ctx context.Context) model.Outcome
}

// Factory 根据描述创建动作实例，返回 NetworkAction 或 StandaloneAction
type Factory func(desc model.ActionDescriptor) (interface{}, error)
