// Package filesystem 将产物（报告、输出工作簿）写入本地目录。
package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pmsync/pkg/contract"
)

// Options: 写入器选项。
type Options struct {
	// OutputDir: 产物根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 同目录临时文件 + rename；nil 视为 true。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 仅保留文件名；nil 视为 true。
	Flat *bool `json:"flat,omitempty"`
	// Backup: 覆盖已有文件前保留一份 <name>.bak；nil 视为 false。
	Backup *bool `json:"backup,omitempty"`
	// PermFile/PermDir: 0 表示平台默认。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲；<=0 使用 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 为本地目录 Writer。
type FS struct {
	root    string
	atomic  bool
	flat    bool
	backup  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

var _ contract.Writer = (*FS)(nil)

// New 创建文件系统 Writer。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	w := &FS{
		root:    opts.OutputDir,
		atomic:  boolOr(opts.Atomic, true),
		flat:    boolOr(opts.Flat, true),
		backup:  boolOr(opts.Backup, false),
		permF:   opts.PermFile,
		permD:   opts.PermDir,
		bufSize: opts.BufSize,
	}
	if w.permF == 0 {
		w.permF = 0o644
	}
	if w.permD == 0 {
		w.permD = 0o755
	}
	if w.bufSize <= 0 {
		w.bufSize = 64 * 1024
	}
	return w, nil
}

// ForFile 返回写入单个目标文件的 Writer 与对应 ArtifactID。
// 工作簿同步以此将输出落到任意路径。
func ForFile(path string, backup bool) (*FS, contract.ArtifactID, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "." || p == "" {
		return nil, "", contract.ErrPathInvalid
	}
	dir, base := filepath.Split(p)
	if dir == "" {
		dir = "."
	}
	w, err := New(&Options{OutputDir: dir, Backup: &backup})
	if err != nil {
		return nil, "", err
	}
	return w, contract.ArtifactID(base), nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Root 返回产物根目录。
func (w *FS) Root() string { return w.root }

// Path 返回 id 映射后的落盘路径。
func (w *FS) Path(id contract.ArtifactID) (string, error) { return w.mapPath(id) }

// Write 将 r 的全部字节写入 id 映射的路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.backup {
		if err := w.keepBackup(dest); err != nil {
			return err
		}
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(string(id))
	if w.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == "" || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
		return filepath.Join(w.root, rel), nil
	}
	switch {
	case rel == "." || rel == "":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel), filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

// keepBackup 复制已有目标为 <dest>.bak；目标不存在时跳过。
func (w *FS) keepBackup(dest string) error {
	src, err := os.Open(dest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()
	bak, err := os.OpenFile(dest+".bak", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	if _, err := io.Copy(bak, src); err != nil {
		_ = bak.Close()
		return err
	}
	return bak.Close()
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		_ = bw.Flush()
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 父目录 fsync 为尽力而为
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 每次 Read 前检查 ctx。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
