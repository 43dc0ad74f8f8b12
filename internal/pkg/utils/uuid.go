/*
 * @author: sun977
 * @date: 2025.09.05
 * @description: uuid工具包
 * @func: 为编排周期、手动触发生成追踪ID
 */

package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID 生成UUID v4，标准格式如：550e8400-e29b-41d4-a716-446655440000
func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateShortID 生成带前缀的短ID，如 cycle-550e8400
// 只用于日志关联，不保证全局唯一
func GenerateShortID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// IsValidUUID 校验UUID格式
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
