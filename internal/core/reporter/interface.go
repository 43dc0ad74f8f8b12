/**
 * 结果输出接口定义
 * @author: Sun977
 * @date: 2026.01.21
 * @description: 发现结果、知识库视图统一实现 TabularData，由控制台或 CSV 输出。
 */

package reporter

import (
	"errors"
)

// TabularData 是一个可以被渲染为表格的数据接口
type TabularData interface {
	Headers() []string
	Rows() [][]string
}

// Reporter 定义结果输出的行为
type Reporter interface {
	Report(data TabularData) error
}

// MultiReporter 支持同时向多个目标输出 (Console + File)
type MultiReporter struct {
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{
		reporters: reporters,
	}
}

func (m *MultiReporter) Report(data TabularData) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
