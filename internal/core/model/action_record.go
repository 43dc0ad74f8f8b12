/**
 * 动作执行记录
 * @author: sun977
 * @date: 2026.02.03
 * @description: 知识库中每个 (目标, 动作) 单元格的值。磁盘上保持 success_YYYYMMDD_HHMMSS 文本格式，
 *               内存中使用带标签的结构体，避免各处重复解析字符串。
 */

package model

import (
	"strings"
	"time"
)

// CellTimeLayout 单元格时间戳格式
const CellTimeLayout = "20060102_150405"

// Outcome 动作结果
type Outcome int

const (
	OutcomeUnset   Outcome = iota // 从未执行
	OutcomeSuccess                // 成功
	OutcomeFailed                 // 失败
	OutcomeSkipped                // 跳过 (不写回知识库)
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unset"
	}
}

// ActionRecord 某个动作在某个目标上最近一次的结果
type ActionRecord struct {
	Outcome Outcome
	At      time.Time
}

// NewActionRecord 以指定时间创建记录，时间截断到秒 (与磁盘精度一致)
func NewActionRecord(outcome Outcome, at time.Time) ActionRecord {
	return ActionRecord{Outcome: outcome, At: at.Truncate(time.Second)}
}

// ParseActionRecord 解析单元格文本
// 无法识别的文本视为 unset，不影响调度
func ParseActionRecord(cell string) ActionRecord {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return ActionRecord{}
	}

	var outcome Outcome
	var rest string
	switch {
	case strings.HasPrefix(cell, "success_"):
		outcome, rest = OutcomeSuccess, strings.TrimPrefix(cell, "success_")
	case strings.HasPrefix(cell, "failed_"):
		outcome, rest = OutcomeFailed, strings.TrimPrefix(cell, "failed_")
	default:
		return ActionRecord{}
	}

	at, err := time.ParseInLocation(CellTimeLayout, rest, time.Local)
	if err != nil {
		return ActionRecord{}
	}
	return ActionRecord{Outcome: outcome, At: at}
}

// String 序列化为单元格文本
func (r ActionRecord) String() string {
	switch r.Outcome {
	case OutcomeSuccess, OutcomeFailed:
		return r.Outcome.String() + "_" + r.At.In(time.Local).Format(CellTimeLayout)
	default:
		return ""
	}
}

// IsSet 是否有过成功或失败结果
func (r ActionRecord) IsSet() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeFailed
}

// Succeeded 最近一次是否成功
func (r ActionRecord) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
