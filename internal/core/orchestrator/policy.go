package orchestrator

import (
	"time"

	"neohunter/internal/config"
	"neohunter/internal/core/model"
)

// Policy 重试退避策略
type Policy struct {
	RetrySuccess      bool
	SuccessRetryDelay time.Duration
	FailedRetryDelay  time.Duration
}

// PolicyFrom 从配置构造策略
func PolicyFrom(cfg *config.OrchestratorConfig) Policy {
	if cfg == nil {
		return Policy{}
	}
	return Policy{
		RetrySuccess:      cfg.RetrySuccessActions,
		SuccessRetryDelay: cfg.SuccessRetryDelay,
		FailedRetryDelay:  cfg.FailedRetryDelay,
	}
}

// Allows 在 now 时刻是否允许 (再次) 执行
func (p Policy) Allows(rec model.ActionRecord, now time.Time) bool {
	switch rec.Outcome {
	case model.OutcomeSuccess:
		return p.RetrySuccess && !now.Before(rec.At.Add(p.SuccessRetryDelay))
	case model.OutcomeFailed:
		return !now.Before(rec.At.Add(p.FailedRetryDelay))
	default:
		return true
	}
}

// RetryIn 距离允许重试还需等待的时间，不允许重试时返回 -1
func (p Policy) RetryIn(rec model.ActionRecord, now time.Time) time.Duration {
	var next time.Time
	switch rec.Outcome {
	case model.OutcomeSuccess:
		if !p.RetrySuccess {
			return -1
		}
		next = rec.At.Add(p.SuccessRetryDelay)
	case model.OutcomeFailed:
		next = rec.At.Add(p.FailedRetryDelay)
	default:
		return 0
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}
