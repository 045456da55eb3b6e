package diag

import (
	"sort"
	"strings"
	"sync"
)

// 进程内最小指标（计数与累计耗时），快照写入报告。
// 名称：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}

var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

func key(parts ...string) string { return strings.Join(parts, "|") }

func add(k string, v int64) {
	metricsMu.Lock()
	counters[k] += v
	metricsMu.Unlock()
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { add(key("op_total", comp, stage, result), 1) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { add(key("error_total", comp, code), 1) }

// ObserveDuration 累计阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add(key("op_duration_ms", comp, stage), durMS)
}

// Metric 为快照中的单项。
type Metric struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// MetricsSnapshot 返回按名称排序的当前值。
func MetricsSnapshot() []Metric {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := make([]Metric, 0, len(counters))
	for k, v := range counters {
		out = append(out, Metric{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetMetrics 清空计数（每次运行开始时调用）。
func ResetMetrics() {
	metricsMu.Lock()
	counters = map[string]int64{}
	metricsMu.Unlock()
}
