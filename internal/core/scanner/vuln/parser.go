package vuln

import (
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Separator 多条漏洞在摘要单元格中的分隔符
const Separator = "; "

// 出现以下任一标记即开始采集，直到空行或 "|_" 收尾行
var captureTrigger = mustCompile(`VULNERABLE|CVE-|\*EXPLOIT\*`)

func mustCompile(pattern string) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = 100 * time.Millisecond
	return re
}

// ParseVulnerabilities 从 nmap vulners 输出中提取漏洞行 (去重、排序)
func ParseVulnerabilities(output string) []string {
	seen := make(map[string]struct{})
	capture := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if ok, _ := captureTrigger.MatchString(line); ok {
			capture = true
		}
		if !capture {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(line, "|_") {
			capture = false
			continue
		}
		seen[trimmed] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SplitCell 拆分摘要单元格
func SplitCell(cell string) []string {
	var out []string
	for _, v := range strings.Split(cell, Separator) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
