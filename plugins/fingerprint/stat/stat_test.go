package stat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsync/pkg/contract"
)

// UT-FPS-01: 时间或大小变化即变更指纹
func TestFingerprint(t *testing.T) {
	p := filepath.Join(t.TempDir(), "PMS.xlsx")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0o644))
	t0 := time.Date(2025, 4, 11, 8, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(p, t0, t0))

	ctx := context.Background()
	a, err := New().Fingerprint(ctx, contract.DocumentID(p))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(a, "_3"), "got %s", a)

	b, err := New().Fingerprint(ctx, contract.DocumentID(p))
	require.NoError(t, err)
	assert.Equal(t, a, b, "未修改应稳定")

	t1 := t0.Add(time.Second)
	require.NoError(t, os.Chtimes(p, t1, t1))
	c, err := New().Fingerprint(ctx, contract.DocumentID(p))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = New().Fingerprint(ctx, contract.DocumentID(filepath.Join(t.TempDir(), "none")))
	assert.ErrorIs(t, err, contract.ErrDocumentUnreadable)
}
