// 按 type 字段区分的结构化日志：控制接口访问、系统事件、动作执行、网络发现、凭据命中
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"neohunter/internal/pkg/utils"
)

// FormatTimestamp 格式化时间戳为统一的毫秒精度格式
// 返回格式："2006-01-02 15:04:05.000"
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}

// NowFormatted 返回当前时间的格式化字符串
func NowFormatted() string {
	return FormatTimestamp(time.Now())
}

// LogType 日志类型枚举
type LogType string

const (
	// AccessLog 访问日志 - 控制接口请求
	AccessLog LogType = "access"
	// SystemLog 系统日志 - 组件启动/停止/重载
	SystemLog LogType = "system"
	// ActionLog 动作日志 - 编排器执行的每一次动作
	ActionLog LogType = "action"
	// DiscoveryLog 发现日志 - 每一轮网络发现
	DiscoveryLog LogType = "discovery"
	// CredentialLog 凭据日志 - 爆破命中
	CredentialLog LogType = "credential"
)

// LogLevel 日志级别类型，调用方无需直接引用 logrus
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// LogAccessRequest 记录控制接口访问日志
func LogAccessRequest(c *gin.Context, startTime time.Time, requestID string) {
	if LoggerInstance == nil {
		return
	}

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":          AccessLog,
		"method":        c.Request.Method,
		"path":          c.Request.URL.Path,
		"query":         c.Request.URL.RawQuery,
		"status_code":   c.Writer.Status(),
		"response_time": time.Since(startTime).Milliseconds(),
		"client_ip":     utils.GetClientIP(c),
		"user_agent":    c.Request.UserAgent(),
		"request_id":    requestID,
		"response_size": c.Writer.Size(),
	}).Info("HTTP request processed")
}

// LogSystemEvent 记录系统事件日志
// 用于记录组件启动、关闭、配置重载等系统级事件
func LogSystemEvent(component, event, message string, level LogLevel, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
		"message":   message,
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	LoggerInstance.logger.WithFields(fields).Log(toLogrusLevel(level), fmt.Sprintf("System event: %s - %s", component, event))
}

// LogActionOperation 记录动作执行日志
// status 取值 success / failed / skipped / running
func LogActionOperation(action, target, status string, duration time.Duration, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":     ActionLog,
		"action":   action,
		"target":   target,
		"status":   status,
		"duration": duration.Milliseconds(),
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	entry := LoggerInstance.logger.WithFields(fields)
	switch status {
	case "success":
		entry.Info(fmt.Sprintf("Action succeeded: %s on %s", action, target))
	case "failed":
		entry.Warn(fmt.Sprintf("Action failed: %s on %s", action, target))
	case "running":
		entry.Debug(fmt.Sprintf("Action running: %s on %s", action, target))
	default:
		entry.Info(fmt.Sprintf("Action %s: %s on %s", status, action, target))
	}
}

// LogDiscoveryPass 记录一轮网络发现的汇总
func LogDiscoveryPass(network string, aliveHosts, openPorts int, duration time.Duration) {
	if LoggerInstance == nil {
		return
	}

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":        DiscoveryLog,
		"network":     network,
		"alive_hosts": aliveHosts,
		"open_ports":  openPorts,
		"duration":    duration.Milliseconds(),
	}).Info(fmt.Sprintf("Discovery completed: %s (%d hosts, %d ports)", network, aliveHosts, openPorts))
}

// LogCredentialHit 记录爆破命中 (密码不写入日志)
func LogCredentialHit(protocol, ip string, port int, user string) {
	if LoggerInstance == nil {
		return
	}

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":     CredentialLog,
		"protocol": protocol,
		"ip":       ip,
		"port":     port,
		"user":     user,
	}).Info(fmt.Sprintf("Credential found: %s://%s@%s:%d", protocol, user, ip, port))
}
