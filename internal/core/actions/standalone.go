package actions

import (
	"context"

	"neohunter/internal/core/model"
	"neohunter/internal/pkg/logger"
)

// LogStandalone 示例独立动作，只写日志
type LogStandalone struct {
	name string
}

func NewLogStandalone(name string) *LogStandalone {
	return &LogStandalone{name: name}
}

func (a *LogStandalone) Execute(ctx context.Context) model.Outcome {
	if ctx.Err() != nil {
		return model.OutcomeSkipped
	}
	logger.WithField("action", a.name).Info("Standalone action executed")
	return model.OutcomeSuccess
}
