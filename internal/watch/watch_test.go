package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pmsync/internal/diag"
)

func start(t *testing.T, w *Watcher) (<-chan []string, context.CancelFunc, <-chan error) {
	t.Helper()
	calls := make(chan []string, 8)
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) error {
			calls <- changed
			return nil
		})
	}()
	return calls, cancel, done
}

// UT-WCH-01: 连续写入在静默期后合并为一次回调；无关文件被忽略
func TestRunDebounce(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	pms := filepath.Join(dir, "PMS.xlsx")
	require.NoError(t, os.WriteFile(pms, []byte("v0"), 0o644))

	w, err := New([]string{pms}, 100*time.Millisecond, diag.Nop())
	require.NoError(t, err)
	calls, cancel, done := start(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$PMS.xlsx"), []byte("lock"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(pms, []byte{byte('a' + i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case got := <-calls:
		assert.Equal(t, []string{pms}, got)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到回调")
	}
	select {
	case got := <-calls:
		t.Fatalf("多余的回调: %v", got)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
	assert.NoError(t, w.Close(), "重复关闭应安全")
}

// UT-WCH-02: 以替换方式保存的文件仍被识别
func TestRunRename(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	pnt := filepath.Join(dir, "PNT.xlsx")
	require.NoError(t, os.WriteFile(pnt, []byte("v0"), 0o644))
	w, err := New([]string{pnt, pnt}, 50*time.Millisecond, diag.Nop())
	require.NoError(t, err)
	calls, cancel, done := start(t, w)

	tmp := filepath.Join(dir, "PNT.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("v1"), 0o644))
	require.NoError(t, os.Rename(tmp, pnt))

	select {
	case got := <-calls:
		assert.Equal(t, []string{pnt}, got)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到回调")
	}
	cancel()
	require.NoError(t, <-done)
}

// UT-WCH-03: 参数错误
func TestNewErrors(t *testing.T) {
	_, err := New(nil, 0, diag.Nop())
	assert.Error(t, err)
	_, err = New([]string{filepath.Join(t.TempDir(), "missing", "a.xlsx")}, 0, diag.Nop())
	assert.Error(t, err, "目录不存在")
}
