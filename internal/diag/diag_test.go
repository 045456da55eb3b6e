package diag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"pmsync/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.WriteLine([]byte("first line that is very long")), "写入失败")
	require.NoError(t, w.WriteLine([]byte("second")), "第二次写入失败")
	files, err := os.ReadDir(dir)
	require.NoError(t, err, "读取目录失败")
	assert.GreaterOrEqual(t, len(files), 2, "应存在轮转文件")
}

// UT-DIAG-02: 当前文件名与时间戳文件同时存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	t.Cleanup(func() { _ = w.Close() })
	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")))
	}
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == "pmsync-current.log" {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "pmsync-") && strings.HasSuffix(e.Name(), ".log") && !strings.Contains(e.Name(), "current") {
			hasRotated = true
		}
	}
	assert.True(t, hasCurrent && hasRotated, "期望当前与轮转文件均存在, current=%v rotated=%v", hasCurrent, hasRotated)
}

// UT-DIAG-03: ensureOpen/rotate 内部分支
func TestRotatingFileEnsureAndRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 1024)
	require.NoError(t, w.ensureOpen())
	require.NotNil(t, w.f, "文件应已打开")
	require.NoError(t, w.rotate())
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, ents, 2)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close(), "重复关闭应为 no-op")
}

func decodeEvents(t *testing.T, b []byte) []Event {
	t.Helper()
	var out []Event
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), "日志行应为 JSON: %s", sc.Text())
		out = append(out, ev)
	}
	return out
}

// UT-DIAG-04: 结构化事件字段与级别过滤
func TestLoggerEvents(t *testing.T) {
	ResetMetrics()
	var buf bytes.Buffer
	lg := NewLoggerTo("corr-1", "info", zapcore.AddSync(&buf))
	tm := lg.StartWith("indexer", "build index", "PMS.xlsx", "")
	lg.DebugStart("indexer", "axis", "", "Axis 19", nil)
	lg.Warn("planner", "deficit", "not enough rows", "Primer Coat", map[string]string{"deficit": "1"})
	tm.Finish("index built", 3)
	lg.ErrorWithKV("sync", string(CodeSync), "write failed", tm.Since(), "PMS.xlsx", "", map[string]string{"row": "40"})
	require.NoError(t, lg.Close())

	evs := decodeEvents(t, buf.Bytes())
	require.Len(t, evs, 4, "debug 事件应被过滤")
	assert.Equal(t, "start", evs[0].Stage)
	assert.Equal(t, "corr-1", evs[0].CorrID)
	assert.Equal(t, "PMS.xlsx", evs[0].Doc)
	assert.Equal(t, "warn", evs[1].Level)
	assert.Equal(t, "deficit", evs[1].Code)
	assert.Equal(t, map[string]string{"deficit": "1"}, evs[1].KV)
	assert.Equal(t, "finish", evs[2].Stage)
	assert.EqualValues(t, 3, evs[2].Count)
	assert.Equal(t, "error", evs[3].Level)
	assert.Equal(t, "sync", evs[3].Code)
	_, err := time.Parse(time.RFC3339, evs[0].TS)
	assert.NoError(t, err, "ts 应为 RFC3339")

	var found bool
	for _, m := range MetricsSnapshot() {
		if m.Name == "op_duration_ms|indexer|finish" {
			found = true
		}
	}
	assert.True(t, found, "Finish 应记录耗时指标")
}

// UT-DIAG-05: 文件 sink 写入 JSON 行
func TestLoggerInDir(t *testing.T) {
	dir := t.TempDir()
	lg := NewLoggerInDir("c", "debug", dir)
	lg.Start("cli", "run").Finish("done", 0)
	require.NoError(t, lg.Close())
	b, err := os.ReadFile(dir + "/pmsync-current.log")
	require.NoError(t, err)
	assert.Len(t, decodeEvents(t, b), 2)

	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.Info("x", "", "m", "", nil)
		Nop().Error("x", "y", "m", nil)
		_ = nilLogger.Close()
	})
}

// UT-DIAG-06: 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{fmt.Errorf("sheet x: %w", contract.ErrSheetNotFound), CodeConfig},
		{contract.ErrColumnOutOfRange, CodeConfig},
		{contract.ErrInvalidConfig, CodeConfig},
		{fmt.Errorf("row 3: %w", contract.ErrSyncFailed), CodeSync},
		{contract.ErrCacheCorrupt, CodeCache},
		{contract.ErrInvariantViolation, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, CodeIO},
		{contract.ErrDocumentUnreadable, CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "分类错误: %v", c.err)
	}
	assert.True(t, IsConfig(contract.ErrSheetNotFound))
	assert.False(t, IsConfig(contract.ErrSyncFailed))
}

// UT-DIAG-07: 指标累加与快照有序
func TestMetrics(t *testing.T) {
	ResetMetrics()
	IncOp("sync", "apply", "success")
	IncOp("sync", "apply", "success")
	IncError("sync", string(CodeSync))
	ObserveDuration("planner", "finish", 7)
	snap := MetricsSnapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, Metric{Name: "error_total|sync|sync", Value: 1}, snap[0])
	assert.Equal(t, Metric{Name: "op_duration_ms|planner|finish", Value: 7}, snap[1])
	assert.Equal(t, Metric{Name: "op_total|sync|apply|success", Value: 2}, snap[2])
	ResetMetrics()
	assert.Empty(t, MetricsSnapshot())
}

// UT-DIAG-08: 非 TTY 终端输出阶段与汇总块
func TestTerminalNonTTY(t *testing.T) {
	var buf bytes.Buffer
	tm := NewTerminal(&buf, true)
	tm.RunStart("dry-run", "/data/PMS-paint REV-03H.xlsx", "/data/PNT-G.xlsx")
	tm.StageStart("index")
	tm.StageFinish(true, 12, "cache miss", 1500*time.Millisecond)
	tm.Summary(contract.Summary{Existing: 3, New: 1, Deficit: 1}, &contract.SyncTotals{Inserted: 2, Updated: 4}, true)
	tm.RunFinish(true, 2*time.Second)

	out := buf.String()
	assert.NotContains(t, out, "\r", "非 TTY 不应输出单行覆盖")
	assert.Contains(t, out, "[run] dry-run | target=PMS-paint REV-03H.xlsx | source=PNT-G.xlsx")
	assert.Contains(t, out, "[done] index | 数量 12 | 用时 1.5s | cache miss")
	assert.Contains(t, out, "existing")
	assert.Contains(t, out, "sync (dry run)")
	assert.Contains(t, out, "[ok] 全部完成 | 阶段 1 | 总用时 2.0s")
}

// UT-DIAG-09: 禁用与 nil 终端为 no-op；全局指针可替换
func TestTerminalDisabled(t *testing.T) {
	var buf bytes.Buffer
	tm := NewTerminal(&buf, false)
	tm.RunStart("sync", "a", "b")
	tm.Summary(contract.Summary{}, nil, false)
	assert.Zero(t, buf.Len())

	var nt *Terminal
	assert.NotPanics(t, func() { nt.StageStart("x"); nt.RunFinish(false, 0) })

	SetTerminal(tm)
	assert.Same(t, tm, GetTerminal())
	SetTerminal(nil)
	assert.Nil(t, GetTerminal())
}

func TestShortenAndFormat(t *testing.T) {
	assert.Equal(t, "abc", shortenBase("/x/y/abc", 10))
	assert.Equal(t, "abcd…", shortenBase("abcdefgh", 5))
	assert.Equal(t, "", shortenBase("", 5))
	assert.Equal(t, "999ms", formatDur(999*time.Millisecond))
	assert.Equal(t, "a b", safe("a\nb"))
}
