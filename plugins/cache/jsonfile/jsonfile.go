// Package jsonfile 以单个 JSON 文件保存最近一次的结构索引。
//
// 文件只保存一个条目；命中要求指纹与工作表名同时一致。
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"pmsync/pkg/contract"
	wfs "pmsync/plugins/writer/filesystem"
)

// Options: 缓存选项。
type Options struct {
	// Path: 缓存文件路径；空则为 pms_cache.json。
	Path string `json:"path,omitempty"`
}

// DefaultPath 为默认缓存文件名。
const DefaultPath = "pms_cache.json"

// record 为落盘格式。
type record struct {
	FileHash      string                  `json:"file_hash"`
	SheetName     string                  `json:"sheet_name"`
	Document      contract.DocumentID     `json:"document,omitempty"`
	Timestamp     string                  `json:"timestamp"`
	ItemLocations contract.StructureIndex `json:"item_locations"`
}

// Cache 实现 contract.StructureCache。
type Cache struct {
	path string
	now  func() time.Time
}

var _ contract.StructureCache = (*Cache)(nil)

// New 创建 JSON 文件缓存。
func New(opts *Options) *Cache {
	p := DefaultPath
	if opts != nil && opts.Path != "" {
		p = opts.Path
	}
	return &Cache{path: p, now: time.Now}
}

// Path 返回缓存文件路径。
func (c *Cache) Path() string { return c.path }

// Load 读取缓存；文件缺失或键不一致为未命中，内容损坏返回 ErrCacheCorrupt。
func (c *Cache) Load(ctx context.Context, key contract.CacheKey) (contract.StructureIndex, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", contract.ErrCacheCorrupt, c.path, err)
	}
	if rec.FileHash != key.Fingerprint || rec.SheetName != key.Sheet {
		return nil, false, nil
	}
	if rec.ItemLocations == nil {
		rec.ItemLocations = contract.StructureIndex{}
	}
	return rec.ItemLocations, true, nil
}

// Save 原子替换缓存文件。
func (c *Cache) Save(ctx context.Context, key contract.CacheKey, idx contract.StructureIndex) error {
	rec := record{
		FileHash:      key.Fingerprint,
		SheetName:     key.Sheet,
		Document:      key.Document,
		Timestamp:     c.now().UTC().Format(time.RFC3339),
		ItemLocations: idx,
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	w, id, err := wfs.ForFile(c.path, false)
	if err != nil {
		return err
	}
	return w.Write(ctx, id, bytes.NewReader(b))
}
