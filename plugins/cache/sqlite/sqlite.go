// Package sqlite 以 SQLite 表保存多个文档/工作表的结构索引。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pmsync/pkg/contract"
)

// Options: 缓存选项。
type Options struct {
	// Path: 数据库文件；空则为 pms_cache.db。":memory:" 为进程内库。
	Path string `json:"path,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS structure_cache (
	document    TEXT NOT NULL,
	sheet       TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	created     TEXT NOT NULL,
	payload     BLOB NOT NULL,
	PRIMARY KEY (document, sheet)
)`

// Cache 实现 contract.StructureCache；每个 (document, sheet) 保留最新一条。
type Cache struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

var _ contract.StructureCache = (*Cache)(nil)

// New 创建缓存；数据库在首次使用时打开。
func New(opts *Options) *Cache {
	p := "pms_cache.db"
	if opts != nil && opts.Path != "" {
		p = opts.Path
	}
	return &Cache{path: p}
}

func (c *Cache) open(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	if c.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// 进程内库按连接隔离，限制为单连接
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	c.db = db
	return db, nil
}

// Load 查找 (document, sheet) 的条目；指纹不一致为未命中。
func (c *Cache) Load(ctx context.Context, key contract.CacheKey) (contract.StructureIndex, bool, error) {
	db, err := c.open(ctx)
	if err != nil {
		return nil, false, err
	}
	var (
		fp      string
		payload []byte
	)
	err = db.QueryRowContext(ctx,
		`SELECT fingerprint, payload FROM structure_cache WHERE document = ? AND sheet = ?`,
		string(key.Document), key.Sheet).Scan(&fp, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if fp != key.Fingerprint {
		return nil, false, nil
	}
	var idx contract.StructureIndex
	if err := json.Unmarshal(payload, &idx); err != nil {
		return nil, false, fmt.Errorf("%w: %s/%s: %v", contract.ErrCacheCorrupt, key.Document, key.Sheet, err)
	}
	if idx == nil {
		idx = contract.StructureIndex{}
	}
	return idx, true, nil
}

// Save 插入或替换 (document, sheet) 的条目。
func (c *Cache) Save(ctx context.Context, key contract.CacheKey, idx contract.StructureIndex) error {
	db, err := c.open(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO structure_cache (document, sheet, fingerprint, created, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (document, sheet) DO UPDATE SET
	fingerprint = excluded.fingerprint,
	created     = excluded.created,
	payload     = excluded.payload`,
		string(key.Document), key.Sheet, key.Fingerprint, time.Now().UTC().Format(time.RFC3339), payload)
	return err
}

// Entries 列出全部条目的键与创建时间（不含索引内容）。
func (c *Cache) Entries(ctx context.Context) ([]contract.CacheEntry, error) {
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT document, sheet, fingerprint, created FROM structure_cache ORDER BY document, sheet`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []contract.CacheEntry
	for rows.Next() {
		var (
			e       contract.CacheEntry
			doc     string
			created string
		)
		if err := rows.Scan(&doc, &e.Key.Sheet, &e.Key.Fingerprint, &created); err != nil {
			return nil, err
		}
		e.Key.Document = contract.DocumentID(doc)
		e.Created, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close 关闭数据库。
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
