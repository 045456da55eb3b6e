package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	currentName  = "pmsync-current.log"
	rotatedFmt   = "pmsync-%s.log"
	defaultLimit = 10 * 1024 * 1024
)

// RotatingFile 将日志写入指定目录，并按文件大小轮转；实现 zapcore.WriteSyncer。
// - 当前文件固定名：pmsync-current.log
// - 轮转：当 size+len(p) 超过 maxBytes 时，将当前文件重命名为 pmsync-<UTC 时间戳>.log，重新创建当前文件。
type RotatingFile struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
	f        *os.File
	curSize  int64
}

var _ zapcore.WriteSyncer = (*RotatingFile)(nil)

func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = defaultLimit
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes}
}

// Write 写入一条已编码的日志（zap 编码器已附带换行）。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	return n, err
}

// WriteLine 写入一行（自动补换行）。
func (w *RotatingFile) WriteLine(b []byte) error {
	_, err := w.Write(append(b, '\n'))
	return err
}

// Sync 刷新当前文件。
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	oldPath := w.f.Name()
	_ = w.f.Close()
	w.f = nil
	// 高精度时间戳，避免同秒冲突覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(filepath.Dir(oldPath), fmt.Sprintf(rotatedFmt, ts))
	if err := os.Rename(oldPath, rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	return w.ensureOpen()
}

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		err := w.f.Close()
		w.f = nil
		return err
	}
	return nil
}
