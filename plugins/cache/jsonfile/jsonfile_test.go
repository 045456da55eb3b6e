package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsync/pkg/contract"
)

func index() contract.StructureIndex {
	return contract.StructureIndex{
		"primercoat": {{AxisName: "Axis 19", Axis: 19, Row: 40, Level: 5, Text: "Primer Coat"}},
	}
}

// UT-CJS-01: 保存后命中；指纹或工作表不同为未命中
func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	c := New(&Options{Path: filepath.Join(t.TempDir(), "cache", "pms_cache.json")})
	key := contract.CacheKey{Document: "PMS.xlsx", Sheet: "1404.01.22", Fingerprint: "1700000000_2048"}

	_, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "文件缺失应未命中")

	require.NoError(t, c.Save(ctx, key, index()))
	got, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, index(), got)

	for _, k := range []contract.CacheKey{
		{Document: key.Document, Sheet: key.Sheet, Fingerprint: "other"},
		{Document: key.Document, Sheet: "other", Fingerprint: key.Fingerprint},
	} {
		_, ok, err := c.Load(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, "键不一致应未命中: %+v", k)
	}
}

// UT-CJS-02: 落盘字段名
func TestRecordFormat(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.json")
	c := New(&Options{Path: p})
	c.now = func() time.Time { return time.Date(2025, 4, 11, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, c.Save(context.Background(), contract.CacheKey{Sheet: "S", Fingerprint: "F"}, index()))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"file_hash", "sheet_name", "timestamp", "item_locations"} {
		assert.Contains(t, m, k)
	}
	assert.JSONEq(t, `"2025-04-11T08:00:00Z"`, string(m["timestamp"]))
}

// UT-CJS-03: 损坏内容
func TestLoadCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(p, []byte("{"), 0o644))
	_, _, err := New(&Options{Path: p}).Load(context.Background(), contract.CacheKey{})
	assert.ErrorIs(t, err, contract.ErrCacheCorrupt)
	assert.Equal(t, DefaultPath, New(nil).Path())
}
