// Package watch 监视源/目标工作簿的变更，在变更平息后触发回调。
//
// 监视的是文件所在目录而非文件本身：表格软件保存时常以临时文件替换原文件，
// 直接监视文件会在首次替换后失效。
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pmsync/internal/diag"
)

// DefaultDebounce 为默认静默期。
const DefaultDebounce = 500 * time.Millisecond

// Func 在一批变更平息后调用；changed 为去重排序后的文件路径。
// 返回的错误仅记录，不终止监视。
type Func func(ctx context.Context, changed []string) error

// Watcher 监视一组文件。
type Watcher struct {
	fs       *fsnotify.Watcher
	files    map[string]string // 绝对路径 -> 调用方给出的路径
	debounce time.Duration
	lg       *diag.Logger

	closeOnce sync.Once
	closeErr  error
}

// New 为 paths 所在目录注册监视。debounce<=0 时使用 DefaultDebounce。
func New(paths []string, debounce time.Duration, lg *diag.Logger) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watch: no paths")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, files: map[string]string{}, debounce: debounce, lg: lg}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = p
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
		dirs[dir] = true
		lg.Info("watch", "add", "watching directory", "", map[string]string{"dir": dir})
	}
	return w, nil
}

// Run 阻塞直到 ctx 取消或底层通道关闭；返回前关闭监视器。
func (w *Watcher) Run(ctx context.Context, fn Func) error {
	defer w.Close()

	tick := time.NewTicker(w.debounce / 5)
	defer tick.Stop()
	pending := map[string]time.Time{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			name, ok := w.relevant(ev)
			if !ok {
				continue
			}
			pending[name] = time.Now()
			w.lg.DebugStart("watch", "event", "", name, map[string]string{"op": ev.Op.String()})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.lg.Warn("watch", string(diag.CodeIO), "watcher error", "", map[string]string{"err": err.Error()})
			diag.IncError("watch", string(diag.CodeIO))

		case <-tick.C:
			if len(pending) == 0 || !settled(pending, w.debounce) {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			diag.IncOp("watch", "trigger", "success")
			if err := fn(ctx, changed); err != nil {
				w.lg.Warn("watch", string(diag.Classify(err)), "rerun failed", "", map[string]string{"err": err.Error()})
			}
		}
	}
}

// Close 释放监视器；可重复调用。
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { w.closeErr = w.fs.Close() })
	return w.closeErr
}

// relevant 过滤出被监视文件的写入/创建/改名事件；忽略 Office 锁文件。
func (w *Watcher) relevant(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), "~$") {
		return "", false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return "", false
	}
	name, ok := w.files[abs]
	return name, ok
}

// settled 报告全部待处理变更是否都已静默满 d。
func settled(pending map[string]time.Time, d time.Duration) bool {
	now := time.Now()
	for _, t := range pending {
		if now.Sub(t) < d {
			return false
		}
	}
	return true
}
