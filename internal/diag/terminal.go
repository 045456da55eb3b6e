package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pmsync/pkg/contract"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 阶段进行中单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 汇总以 lipgloss 边框块渲染；非 TTY 时不带颜色。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool
	render  *lipgloss.Renderer

	mode       string
	stagesDone int
	runStart   time.Time
	curStage   string

	lastLen int

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled, render: lipgloss.NewRenderer(w)}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	return t
}

// RunStart: 记录运行上下文（模式、目标与源文档）。
func (t *Terminal) RunStart(mode, target, source string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.mode = mode
	t.stagesDone = 0
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] %s | target=%s | source=%s", safe(mode), shortenBase(target, 48), shortenBase(source, 48)))
}

// StageStart: 标记阶段开始（TTY 单行提示；非 TTY 不输出）。
func (t *Terminal) StageStart(stage string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.curStage = stage
	if t.isTTY {
		t.printInline(fmt.Sprintf("[%s] … | 用时 %s", stage, formatSince(t.runStart)))
	}
}

// StageFinish: 阶段结束，立即换行输出结果。
func (t *Terminal) StageFinish(ok bool, count int, note string, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.stagesDone++
	status := "done"
	if !ok {
		status = "fail"
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	line := fmt.Sprintf("[%s] %s | 数量 %d | 用时 %s", status, t.curStage, count, formatDur(dur))
	if note != "" {
		line += " | " + safe(note)
	}
	t.println(line)
}

// Summary: 渲染规划汇总与（可选的）同步计数。
func (t *Terminal) Summary(s contract.Summary, sync *contract.SyncTotals, dryRun bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	title := t.render.NewStyle().Bold(true)
	warn := t.render.NewStyle().Foreground(lipgloss.Color("214"))
	bad := t.render.NewStyle().Foreground(lipgloss.Color("196"))
	row := func(label string, n int, st *lipgloss.Style) string {
		v := fmt.Sprintf("%-13s %5d", label, n)
		if st != nil && n > 0 {
			return st.Render(v)
		}
		return v
	}
	lines := []string{
		title.Render("plan"),
		row("existing", s.Existing, nil),
		row("new", s.New, nil),
		row("unresolvable", s.Unresolvable, &bad),
		row("deficit", s.Deficit, &warn),
		row("unidentified", s.Unidentified, &warn),
	}
	if sync != nil {
		head := "sync"
		if dryRun {
			head = "sync (dry run)"
		}
		lines = append(lines, "", title.Render(head),
			row("inserted", sync.Inserted, nil),
			row("updated", sync.Updated, nil),
			row("skipped", sync.Skipped, nil),
		)
	}
	box := t.render.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	t.println(box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 阶段 %d | 总用时 %s", tag, t.stagesDone, formatDur(dur)))
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 清尾：若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if base == "" || base == "." {
		return ""
	}
	if visLen(base) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	rs := []rune(base)
	return string(rs[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
